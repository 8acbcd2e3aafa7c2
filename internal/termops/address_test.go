package termops

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

func TestAddress(t *testing.T) {
	for _, tok := range []string{"10", "10a", "10-19", "10-19a", "6n23", "w350n5337", "n453", "10к2с3", "12б"} {
		got, ok := Address(tok)
		assert.True(t, ok, tok)
		assert.Equal(t, tok, got)
	}
	for _, tok := range []string{"main", "10ab", "", "a10", "10-"} {
		_, ok := Address(tok)
		assert.False(t, ok, tok)
	}
}

func TestParseSemiNumber(t *testing.T) {
	n, ok := ParseSemiNumber("10a")
	require.True(t, ok)
	assert.Equal(t, 10, n)

	n, ok = ParseSemiNumber("n45w12")
	require.True(t, ok)
	assert.Equal(t, 4512, n)

	_, ok = ParseSemiNumber("abc")
	assert.False(t, ok)
}

func TestNumTokenV3(t *testing.T) {
	tests := map[string]string{
		"":      "",
		"1":     "#",
		"12":    "##",
		"123":   "1##",
		"3566":  "35##",
		"12345": "12###",
	}
	for in, want := range tests {
		assert.Equal(t, want, NumTokenV3(in), in)
	}
	// waffled tokens keep their shape
	assert.Equal(t, "35##", NumTokenV3("35##"))
}

func TestGetHousenumRangeV3(t *testing.T) {
	t.Run("address numbers", func(t *testing.T) {
		got := GetHousenumRangeV3(HousenumDoc{
			AddressNumbers: [][]string{{"1", "10", "100", "1000", "", "abc"}, nil},
		})
		assert.Equal(t, []string{"#", "##", "1##", "10##"}, got)
	})

	t.Run("ranges", func(t *testing.T) {
		got := GetHousenumRangeV3(HousenumDoc{
			RangeType:  "tiger",
			Geometries: 1,
			LFromHN:    [][]string{{"1"}},
			LToHN:      [][]string{{"250"}},
			RFromHN:    [][]string{{"x"}},
			RToHN:      [][]string{{"300"}},
		})
		assert.Equal(t, []string{"#", "##", "1##", "2##"}, got)
	})

	t.Run("reversed range", func(t *testing.T) {
		got := GetHousenumRangeV3(HousenumDoc{
			RangeType:  "tiger",
			Geometries: 1,
			LFromHN:    [][]string{{"20"}},
			LToHN:      [][]string{{"2"}},
		})
		assert.Equal(t, []string{"#", "##"}, got)
	})

	t.Run("no numbers", func(t *testing.T) {
		assert.Nil(t, GetHousenumRangeV3(HousenumDoc{}))
	})
}

func TestParseNumberLists(t *testing.T) {
	got, err := ParseNumberLists(json.RawMessage(`"[[\"1\",2,null]]"`))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2", ""}}, got)

	got, err = ParseNumberLists(json.RawMessage(`[[3],["4a"]]`))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"3"}, {"4a"}}, got)

	got, err = ParseNumberLists(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseNumberLists(json.RawMessage(`{"a":1}`))
	assert.Error(t, err)
}

func TestNumTokenize(t *testing.T) {
	got, err := NumTokenize([]string{"10a", "main", "st"}, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"##", "main", "st"}, got[0].Tokens)
	assert.Equal(t, NumberRef{Number: "10a", Position: 0}, got[0].Address)

	got, err = NumTokenize([]string{"main", "st", "1500"}, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"main", "st", "15##"}, got[0].Tokens)

	got, err = NumTokenize([]string{"main", "st"}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NumTokenize([]string{"10"}, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestNumTokenizePrefix(t *testing.T) {
	tokens := func(vs []NumVariant) [][]string {
		var out [][]string
		for _, v := range vs {
			out = append(out, v.Tokens)
		}
		return out
	}
	assert.Equal(t, [][]string{{"##"}, {"1#"}}, tokens(NumTokenizePrefix([]string{"19"}, 3)))
	assert.Equal(t, [][]string{{"#"}}, tokens(NumTokenizePrefix([]string{"1"}, 3)))
	assert.Empty(t, NumTokenizePrefix([]string{"main"}, 3))
	assert.Empty(t, NumTokenizePrefix([]string{"19", "main"}, 3))
	assert.Empty(t, NumTokenizePrefix([]string{"19"}, 2))
}

func TestMaskAddress(t *testing.T) {
	ref, ok := MaskAddress([]string{"100", "main", "st"}, "main st", 7)
	require.True(t, ok)
	assert.Equal(t, NumberRef{Number: "100", Position: 0}, ref)

	_, ok = MaskAddress([]string{"100", "main", "st"}, "main st", 6)
	assert.False(t, ok)

	_, ok = MaskAddress([]string{"100", "st"}, "100 st", 3)
	assert.False(t, ok)
}

func TestIsAddressNumber(t *testing.T) {
	assert.True(t, IsAddressNumber([]string{"1##"}))
	assert.False(t, IsAddressNumber([]string{"1##", "main"}))
	assert.False(t, IsAddressNumber([]string{"main"}))
}

func TestFeatureID(t *testing.T) {
	assert.Equal(t, uint32(1), FeatureID(1<<20+1))
	assert.Equal(t, uint32(5), FeatureID(-5))
	assert.Equal(t, uint32(0), FeatureID(0))
}

func TestLogScale(t *testing.T) {
	assert.Equal(t, 5, Encode3BitLogScale(3566, 180000))
	assert.Equal(t, 3, Encode3BitLogScale(2, 10))
	assert.Equal(t, 7, Encode3BitLogScale(8, 10))
	assert.Equal(t, 1, Encode3BitLogScale(1, 10))
	assert.Equal(t, 0, Encode3BitLogScale(0, 10))
	assert.Equal(t, 0, Encode3BitLogScale(5, 0))
	assert.Equal(t, 7, Encode3BitLogScale(500, 10))

	assert.Equal(t, 5672.0, Decode3BitLogScale(5, 180000))
	assert.Equal(t, 7.0, Decode3BitLogScale(6, 10))
	assert.Equal(t, 10.0, Decode3BitLogScale(7, 10))
	assert.Equal(t, 0.0, Decode3BitLogScale(0, 10))
}
