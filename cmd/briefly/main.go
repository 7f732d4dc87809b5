// Command briefly はAI要約サービスのAPIサーバー、ワーカー、マイグレーションを起動する。
//
// 使い方:
//
//	briefly [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/briefly/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "briefly: %v\n", err)
		os.Exit(1)
	}
}
