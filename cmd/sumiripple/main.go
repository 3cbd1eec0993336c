// Command sumiripple crawls a curated set of quality documentation domains.
package main

import (
	cmd "github.com/sumiripple/sumiripple/internal/cli"
)

func main() {
	cmd.Execute()
}
