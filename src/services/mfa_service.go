package services

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"regexp"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	mfaQRSize = 200
	// One 30-second step either side of now.
	mfaSkew = 1
)

var mfaCodeRegex = regexp.MustCompile(`^[0-9]{6}$`)

// MFAService issues and checks the TOTP codes that guard admin accounts.
type MFAService struct {
	issuer string
	now    func() time.Time
}

func NewMFAService(issuer string) *MFAService {
	return &MFAService{issuer: issuer, now: time.Now}
}

// MFASetup is what an admin needs to enrol an authenticator app.
type MFASetup struct {
	Secret       string `json:"secret"`
	QRCodeBase64 string `json:"qr_code"`
	URL          string `json:"otpauth_url"`
}

// GenerateMFASecret creates a TOTP key for account and renders it as a base64 PNG QR code.
func (s *MFAService) GenerateMFASecret(account string) (*MFASetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: account,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}

	img, err := key.Image(mfaQRSize, mfaQRSize)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return &MFASetup{
		Secret:       key.Secret(),
		QRCodeBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		URL:          key.URL(),
	}, nil
}

// ValidateToken reports whether code is the current 6-digit TOTP for secret.
func (s *MFAService) ValidateToken(secret, code string) bool {
	if secret == "" || !mfaCodeRegex.MatchString(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      mfaSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
