package app

// Command は steamauth バイナリのサブコマンド。
type Command string

const (
	CommandServe       Command = "serve"       // HTTPサーバー（既定）
	CommandWorker      Command = "worker"      // 期限切れセッションの回収
	CommandMigrate     Command = "migrate"     // スキーマ適用
	CommandHealthcheck Command = "healthcheck" // コンテナ用の /healthz 確認
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は os.Args[1:] の先頭からサブコマンドを決める。
// 先頭以外の引数は見ない。未指定や未知の名前はserveになる。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// NeedsConfig は起動前に環境変数の設定読み込みが必要かを返す。
// healthcheck はSERVER_PORTだけで動くため不要。
func (c Command) NeedsConfig() bool {
	return c != CommandHealthcheck
}
