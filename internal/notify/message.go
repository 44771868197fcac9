package notify

import (
	"fmt"
	"strings"
)

// CredentialsMessage は資格情報通知メッセージの組み立てに必要な情報を表す。
// パスワードは配送後に保持しない。
type CredentialsMessage struct {
	Username     string
	Password     string
	MediaURL     string
	RequestURL   string
	DurationDays int // 0の場合は無期限
}

// Render は資格情報通知のメッセージ本文を組み立てる。
func (m CredentialsMessage) Render() string {
	var b strings.Builder

	b.WriteString("アカウントを作成しました。\n\n")
	fmt.Fprintf(&b, "ログイン: %s\n", m.Username)
	fmt.Fprintf(&b, "パスワード: %s\n\n", m.Password)
	b.WriteString("ログイン後にパスワードを変更してください。\n\n")
	fmt.Fprintf(&b, "メディアサーバー: %s\n", m.MediaURL)
	fmt.Fprintf(&b, "リクエスト: %s\n", m.RequestURL)

	if m.DurationDays > 0 {
		fmt.Fprintf(&b, "\nこのアカウントは%d日後に失効します。", m.DurationDays)
	}

	return b.String()
}
