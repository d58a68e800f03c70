// Command pawrest はPawRestのWebサーバー、ワーカー、マイグレーションを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/pawrest/pawrest/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "pawrest: %v\n", err)
		os.Exit(1)
	}
}
