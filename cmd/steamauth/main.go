// Command steamauth はSteamログインとDiscord紐付けを仲介する認証サーバー。
//
// サブコマンド:
//
//	serve        APIサーバーを起動する（デフォルト）
//	worker       期限切れセッションの削除ジョブを起動する
//	migrate      データベースマイグレーションを適用する
//	healthcheck  /healthz を確認する（Dockerヘルスチェック用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/steamauth/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "steamauth: %v\n", err)
		os.Exit(1)
	}
}
