package provision

import (
	"regexp"
	"strings"
)

// usernameAllowedChars は許可する文字（英数字・ピリオド・ハイフン）以外にマッチする。
var usernameAllowedChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// NormalizeUsername は希望ユーザー名を許可文字のみに正規化する。
// 正規化の結果が空になった場合はアクターIDから決定的な合成名を生成する。
func NormalizeUsername(desired, actorID string) string {
	username := usernameAllowedChars.ReplaceAllString(desired, "")
	if username == "" {
		username = "user_" + usernameAllowedChars.ReplaceAllString(actorID, "")
	}
	return username
}

// usernameKey はユーザー名の排他キーを返す。
// 存在チェックが大文字小文字を区別しないため、キーも小文字に揃える。
func usernameKey(username string) string {
	return strings.ToLower(username)
}
