package provision

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// passwordEntropyBytes は生成パスワードのエントロピー（バイト数）。
const passwordEntropyBytes = 12

// GeneratePassword は暗号論的乱数による使い捨てパスワードを生成する。
// 生成後はログに出力せず、通知またはフォールバック表示で1回だけ利用者に渡す。
func GeneratePassword() (string, error) {
	buf := make([]byte, passwordEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("パスワードの生成に失敗しました: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
