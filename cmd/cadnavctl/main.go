// cadnavctl is the CLI client for the CadNav relay daemon.
package main

import "github.com/Lack-Of-Name/CadNav/cmd/cadnavctl/commands"

func main() {
	commands.Execute()
}
