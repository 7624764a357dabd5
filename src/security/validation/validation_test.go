package validation

import (
	"bytes"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDateString(t *testing.T) {
	d, err := ValidateDateString(" 2024-02-29 ", "date")
	require.NoError(t, err)
	assert.Equal(t, civil.Date{Year: 2024, Month: 2, Day: 29}, d)

	for _, bad := range []string{"", "2023-02-29", "29-02-2024", "2024/02/01", "tomorrow"} {
		_, err := ValidateDateString(bad, "date")
		assert.ErrorIs(t, err, ErrValidationFailed, bad)
	}
}

func TestValidateDateRange(t *testing.T) {
	a := civil.Date{Year: 2024, Month: 1, Day: 1}
	b := civil.Date{Year: 2024, Month: 6, Day: 30}
	assert.NoError(t, ValidateDateRange(a, b))
	assert.NoError(t, ValidateDateRange(a, a))
	assert.ErrorIs(t, ValidateDateRange(b, a), ErrValidationFailed)
}

func TestValidateDecimalString(t *testing.T) {
	zero := decimal.Zero
	hundred := decimal.NewFromInt(100)

	v, err := ValidateDecimalString("5,75", "rate", &zero, &hundred)
	require.NoError(t, err)
	assert.Equal(t, "5.75", v.String())

	_, err = ValidateDecimalString("-0.01", "rate", &zero, nil)
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, err = ValidateDecimalString("100.5", "rate", nil, &hundred)
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, err = ValidateDecimalString("abc", "rate", nil, nil)
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, err = ValidateDecimalString(" ", "rate", nil, nil)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestValidateIntString(t *testing.T) {
	v, err := ValidateIntString("12", "months", 1, 600)
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	_, err = ValidateIntString("0", "months", 1, 600)
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, err = ValidateIntString("1.5", "months", 1, 600)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestValidateSeries(t *testing.T) {
	assert.NoError(t, ValidateSeries("ROD0130"))
	assert.NoError(t, ValidateSeries("EDO1134"))
	for _, bad := range []string{"", "rod0130", "ROD13", "ROD01300", "<b>0130"} {
		assert.ErrorIs(t, ValidateSeries(bad), ErrValidationFailed, bad)
	}
}

func TestValidateAccountFields(t *testing.T) {
	assert.NoError(t, ValidateEmail("jan.kowalski@example.pl"))
	assert.ErrorIs(t, ValidateEmail("not-an-email"), ErrValidationFailed)
	assert.NoError(t, ValidateUsername("jan_k"))
	assert.ErrorIs(t, ValidateUsername("jk"), ErrValidationFailed)
	assert.NoError(t, ValidatePassword("longenough"))
	assert.ErrorIs(t, ValidatePassword("short"), ErrValidationFailed)
	assert.NoError(t, ValidateCurrencyCode("pln"))
	assert.ErrorIs(t, ValidateCurrencyCode("zl"), ErrValidationFailed)
}

func TestScanCSVContent(t *testing.T) {
	assert.NoError(t, ScanCSVContent("start_date,end_date,value\n2024-01-01,,5.75\n", "test"))
	assert.ErrorIs(t, ScanCSVContent("a,b\n<script>alert(1)</script>,x\n", "test"), ErrValidationFailed)
	assert.ErrorIs(t, ScanCSVContent("a,b\n=HYPERLINK(\"x\"),1\n", "test"), ErrValidationFailed)
}

func TestValidateFileContentByMagicBytes(t *testing.T) {
	r := bytes.NewReader([]byte("start_date,end_date,value\n2024-01-01,,5.75\n"))
	ct, err := ValidateFileContentByMagicBytes(r)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", ct)
	pos, _ := r.Seek(0, 1)
	assert.Zero(t, pos, "reader must be rewound")

	_, err = ValidateFileContentByMagicBytes(bytes.NewReader([]byte{0x50, 0x4b, 0x03, 0x04, 0x00}))
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = ValidateFileContentByMagicBytes(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestValidateClientContentType(t *testing.T) {
	assert.NoError(t, ValidateClientContentType("text/csv; charset=utf-8"))
	assert.ErrorIs(t, ValidateClientContentType("application/pdf"), ErrValidationFailed)
}

func TestSanitizers(t *testing.T) {
	assert.Equal(t, "hello", SanitizeText("<b>hello</b>"))
	assert.Equal(t, "'=SUM(A1)", SanitizeForFormulaInjection("=SUM(A1)"))
	assert.Equal(t, "ROD0130", SanitizeForFormulaInjection("ROD0130"))
	assert.Equal(t, "ab", StripUnprintable("a\x00b"))
	assert.Equal(t, "note", CleanInput("  <i>note</i>\x07 "))
	assert.False(t, strings.Contains(CleanInput("<script>x</script>ok"), "<"))
}
