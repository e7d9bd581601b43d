// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/ptcrun/ptc/cmd/ptc"

func main() {
	cmd.Execute()
}
