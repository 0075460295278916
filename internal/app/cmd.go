package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandRun はボールを端末に表示し、制御APIとスケジューラを起動することを示す。
	CommandRun Command = "run"
	// CommandDaemon はUIなしでスケジューラと制御APIを起動することを示す。
	CommandDaemon Command = "daemon"
	// CommandFetch は現在の設定で1回だけフェッチし、結果をJSONで出力することを示す。
	CommandFetch Command = "fetch"
	// CommandConfig は設定ファイルのパスを出力することを示す。
	CommandConfig Command = "config"
	// CommandHealthcheck は制御APIのヘルスチェックを実行することを示す。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandRunを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandRun
	}

	switch args[0] {
	case "run":
		return CommandRun
	case "daemon":
		return CommandDaemon
	case "fetch":
		return CommandFetch
	case "config":
		return CommandConfig
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandRun
	}
}

// usesTerminal はUIが端末を占有するコマンドかを返す。ログはファイルに出力する。
func (c Command) usesTerminal() bool {
	return c == CommandRun
}
