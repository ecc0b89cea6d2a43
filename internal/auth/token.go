// Package auth は認証境界のトークン検証を提供する。
//
// 識別子の発行・更新・OAuthリダイレクトは外部のIdPが担う。本パッケージは
// IdP連携層が署名したopaqueトークンを検証し、外部IDを取り出すことだけを行う。
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Verifier はBearerトークンから外部IDを取り出すインターフェース。
type Verifier interface {
	// Verify はトークンを検証し、外部IdPの識別子を返す。
	Verify(token string) (string, error)
}

// HMACVerifier は共有シークレットによるHMAC-SHA256署名トークンを検証する。
// トークン形式は "<external_id>.<hex(hmac)>"。
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier はHMACVerifierを生成する。
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// sign は外部IDの署名を計算する。
func (v *HMACVerifier) sign(externalID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(externalID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue は外部IDに対するトークンを発行する。開発環境とテストで使用する。
func (v *HMACVerifier) Issue(externalID string) string {
	return externalID + "." + v.sign(externalID)
}

// Verify はトークンの署名を定数時間比較で検証し、外部IDを返す。
func (v *HMACVerifier) Verify(token string) (string, error) {
	idx := strings.LastIndex(token, ".")
	if idx <= 0 || idx == len(token)-1 {
		return "", fmt.Errorf("malformed token")
	}
	externalID, sig := token[:idx], token[idx+1:]

	if !hmac.Equal([]byte(sig), []byte(v.sign(externalID))) {
		return "", fmt.Errorf("invalid token signature")
	}
	return externalID, nil
}

// compile-time interface check
var _ Verifier = (*HMACVerifier)(nil)
