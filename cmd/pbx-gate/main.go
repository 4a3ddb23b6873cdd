// Command pbx-gate is an HTTP gateway in front of a PBX control API.
package main

import "github.com/pbxgate/pbxgate/cmd/pbx-gate/cmd"

func main() {
	cmd.Execute()
}
