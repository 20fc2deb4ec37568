package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakyip/sortengine/parcel"
)

func readingCtx(r parcel.DwsReading) MatchContext {
	return MatchContext{Barcode: r.Barcode, Reading: &r}
}

func TestCompileMatcherUnknownMethod(t *testing.T) {
	_, err := CompileMatcher("TeleportMatch", "Weight > 1")
	assert.Error(t, err)
}

func TestBarcodeMatcher(t *testing.T) {
	tests := []struct {
		name       string
		expr       string
		barcode    string
		want       bool
		compileErr bool
	}{
		{name: "startswith hit", expr: "STARTSWITH:SF", barcode: "SF123456", want: true},
		{name: "startswith miss", expr: "STARTSWITH:SF", barcode: "JD123456", want: false},
		{name: "endswith hit", expr: "ENDSWITH:99", barcode: "SF1299", want: true},
		{name: "contains hit", expr: "CONTAINS:88", barcode: "AB88CD", want: true},
		{name: "equals hit", expr: "EQUALS:X1", barcode: "X1", want: true},
		{name: "equals is exact", expr: "EQUALS:X1", barcode: "X12", want: false},
		{name: "regex hit", expr: `REGEX:^SF\d{6}$`, barcode: "SF123456", want: true},
		{name: "regex miss", expr: `REGEX:^SF\d{6}$`, barcode: "SF12", want: false},
		{name: "prefix case-insensitive", expr: "startswith:SF", barcode: "SF1", want: true},
		{name: "value case matters", expr: "STARTSWITH:sf", barcode: "SF1", want: false},
		{name: "missing prefix", expr: "SF123", compileErr: true},
		{name: "unknown prefix", expr: "GLOB:SF*", compileErr: true},
		{name: "bad regex", expr: "REGEX:[", compileErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := CompileMatcher(BarcodeRegex, tt.expr)
			if tt.compileErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			got, err := m.Match(MatchContext{Barcode: tt.barcode})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBarcodeMatcherFacet(t *testing.T) {
	m, err := CompileMatcher(BarcodeRegex, "STARTSWITH:SF")
	require.NoError(t, err)

	assert.False(t, m.HasFacet(MatchContext{}))
	assert.True(t, m.HasFacet(MatchContext{Barcode: "SF1"}))
}

func TestWeightMatcher(t *testing.T) {
	m, err := CompileMatcher(WeightMatch, "Weight > 1000")
	require.NoError(t, err)

	heavy := readingCtx(parcel.DwsReading{Weight: 1500})
	light := readingCtx(parcel.DwsReading{Weight: 200})

	got, err := m.Match(heavy)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = m.Match(light)
	require.NoError(t, err)
	assert.False(t, got)

	// Weight rules may not reference dimension fields.
	_, err = CompileMatcher(WeightMatch, "Length > 10")
	assert.Error(t, err)
}

func TestVolumeMatcher(t *testing.T) {
	m, err := CompileMatcher(VolumeMatch, "Volume > 40000 and Height < 50")
	require.NoError(t, err)

	got, err := m.Match(readingCtx(parcel.DwsReading{Volume: 48000, Height: 40}))
	require.NoError(t, err)
	assert.True(t, got)

	got, err = m.Match(readingCtx(parcel.DwsReading{Volume: 48000, Height: 60}))
	require.NoError(t, err)
	assert.False(t, got)

	// Volume rules may not reference weight.
	_, err = CompileMatcher(VolumeMatch, "Weight > 10")
	assert.Error(t, err)
}

func TestExpressionMatcherSpansAllFields(t *testing.T) {
	for _, method := range []MatchingMethod{LowCodeExpression, LegacyExpression} {
		m, err := CompileMatcher(method, "Weight > 1000 and Volume < 50000 or Length > 100")
		require.NoError(t, err)

		got, err := m.Match(readingCtx(parcel.DwsReading{Weight: 1200, Volume: 48000}))
		require.NoError(t, err)
		assert.True(t, got, string(method))
	}
}

func TestNumericMatcherFacet(t *testing.T) {
	m, err := CompileMatcher(WeightMatch, "Weight > 0")
	require.NoError(t, err)

	assert.False(t, m.HasFacet(MatchContext{Barcode: "SF1"}))
	assert.True(t, m.HasFacet(readingCtx(parcel.DwsReading{})))

	got, err := m.Match(MatchContext{})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestOcrMatcher(t *testing.T) {
	ocr := &parcel.OcrData{Fields: map[string]string{
		"Segment1":    "SH",
		"Segment2":    "021",
		"PhoneSuffix": "6789",
	}}

	tests := []struct {
		name       string
		expr       string
		want       bool
		compileErr bool
	}{
		{name: "literal hit", expr: "Segment1=SH", want: true},
		{name: "literal miss", expr: "Segment1=BJ", want: false},
		{name: "and of literals", expr: "Segment1=SH and Segment2=021", want: true},
		{name: "and one missing field", expr: "Segment1=SH and Segment9=X", want: false},
		{name: "or rescues", expr: "Segment1=BJ or PhoneSuffix=6789", want: true},
		{name: "regex value", expr: `PhoneSuffix=\d{4}`, want: true},
		{name: "regex miss", expr: `Segment2=\d{5}`, want: false},
		{name: "empty condition", expr: "  ", compileErr: true},
		{name: "missing equals", expr: "Segment1", compileErr: true},
		{name: "trailing connective", expr: "Segment1=SH and", compileErr: true},
		{name: "bad connective", expr: "Segment1=SH nor Segment2=021", compileErr: true},
		{name: "bad regex", expr: "Segment1=[", compileErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := CompileMatcher(OcrMatch, tt.expr)
			if tt.compileErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			got, err := m.Match(MatchContext{Ocr: ocr})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOcrMatcherFacet(t *testing.T) {
	m, err := CompileMatcher(OcrMatch, "Segment1=SH")
	require.NoError(t, err)

	assert.False(t, m.HasFacet(MatchContext{}))
	assert.False(t, m.HasFacet(MatchContext{Ocr: &parcel.OcrData{}}))
	assert.True(t, m.HasFacet(MatchContext{Ocr: &parcel.OcrData{Fields: map[string]string{"Segment1": "SH"}}}))
}

func TestAPIResponseMatcher(t *testing.T) {
	tests := []struct {
		name       string
		expr       string
		payload    string
		want       bool
		wantErr    bool
		compileErr bool
	}{
		{name: "contains hit", expr: "CONTAINS:A07", payload: `{"chute":"A07"}`, want: true},
		{name: "contains miss", expr: "CONTAINS:A07", payload: `{"chute":"B02"}`, want: false},
		{name: "rcontains hit", expr: "RCONTAINS:A07,B02,C11", payload: "B02", want: true},
		{name: "rcontains miss", expr: "RCONTAINS:A07,B02", payload: "C11", want: false},
		{name: "regex hit", expr: `REGEX:"chute":"A\d+"`, payload: `{"chute":"A07"}`, want: true},
		{name: "json field hit", expr: "JSON:chute=A07", payload: `{"chute":"A07"}`, want: true},
		{name: "json numeric field", expr: "JSON:code=7", payload: `{"code":7}`, want: true},
		{name: "json field absent", expr: "JSON:chute=A07", payload: `{"other":1}`, want: false},
		{name: "json payload invalid", expr: "JSON:chute=A07", payload: "not json", wantErr: true},
		{name: "missing prefix", expr: "A07", compileErr: true},
		{name: "unknown prefix", expr: "XPATH:/chute", compileErr: true},
		{name: "json without field", expr: "JSON:=A07", compileErr: true},
		{name: "bad regex", expr: "REGEX:[", compileErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := CompileMatcher(ApiResponseMatch, tt.expr)
			if tt.compileErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			got, err := m.Match(MatchContext{ApiResponse: tt.payload})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
