package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/kasuganosora/orientsql/pkg/orientdb"
)

var shellCompletions = []string{
	"SELECT", "INSERT INTO", "UPDATE", "DELETE FROM", "CREATE CLASS", "CREATE PROPERTY",
	"DROP CLASS", "TRAVERSE", "\\q", "\\dt", "\\d", "\\di", "\\stats", "\\help",
}

const shellHelp = `Commands:
  \dt           list classes
  \d  <class>   describe a class
  \di <class>   list indexes of a class
  \stats        command metrics and slow commands
  \q            quit
SQL statements end with ';'.`

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".orientsql_history")
}

func newReadline(prompt string) (*readline.Instance, error) {
	items := make([]readline.PrefixCompleterInterface, 0, len(shellCompletions))
	for _, c := range shellCompletions {
		items = append(items, readline.PcItem(c))
	}
	return readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyFilePath(),
		AutoComplete:      readline.NewPrefixCompleter(items...),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
}

// shell 交互式命令行，多行输入以 ; 结束
func (a *app) shell(ctx context.Context) error {
	prompt := "orientsql:" + a.cfg.OrientDB.Database + "> "
	rl, err := newReadline(prompt)
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintf(a.out, "connected to %s/%s, \\help for help\n", a.cfg.OrientDB.Address(), a.cfg.OrientDB.Database)

	var buf strings.Builder
	for {
		if buf.Len() > 0 {
			rl.SetPrompt("      -> ")
		} else {
			rl.SetPrompt(prompt)
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if buf.Len() == 0 && strings.HasPrefix(line, "\\") {
			if quit := a.metaCommand(ctx, line); quit {
				return nil
			}
			continue
		}

		if line == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			continue
		}

		sql := strings.TrimSuffix(strings.TrimSpace(buf.String()), ";")
		buf.Reset()
		if err := a.run(ctx, sql); err != nil {
			fmt.Fprintf(a.out, "ERROR: %v\n", err)
		}
	}
}

// metaCommand 处理 \ 开头的命令，返回是否退出
func (a *app) metaCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	var err error
	switch fields[0] {
	case "\\q", "\\quit":
		return true
	case "\\help", "\\h", "\\?":
		fmt.Fprintln(a.out, shellHelp)
	case "\\dt":
		err = a.run(ctx, orientdb.SentinelListTables)
	case "\\d", "\\di":
		if len(fields) < 2 {
			fmt.Fprintf(a.out, "usage: %s <class>\n", fields[0])
			return false
		}
		sentinel := orientdb.SentinelListTableColumns
		if fields[0] == "\\di" {
			sentinel = orientdb.SentinelListTableIndexes
		}
		err = a.run(ctx, orientdb.ComposeSentinel(fields[1], sentinel))
	case "\\stats":
		err = a.printStats()
	default:
		fmt.Fprintf(a.out, "unknown command %s, \\help for help\n", fields[0])
	}
	if err != nil {
		fmt.Fprintf(a.out, "ERROR: %v\n", err)
	}
	return false
}

func (a *app) printStats() error {
	b, err := json.MarshalIndent(map[string]interface{}{
		"metrics": a.monitor.Metrics.GetSnapshot(),
		"slow":    a.monitor.Slow.GetAll(),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(b))
	return nil
}
