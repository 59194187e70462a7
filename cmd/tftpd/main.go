// Command tftpd is a TFTP server (spec §6 "CLI — server").
package main

import (
	"fmt"
	"os"

	"github.com/tftp-go/tftpd/server"
)

func main() {
	if err := server.Main(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
