package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jessevdk/go-flags"

	"simple-kv/pkg/parsers"
	"simple-kv/pkg/protos"
)

var opts struct {
	Host string `value-name:"host" short:"H" long:"host" default:"localhost" description:"simple-kv server host"`
	Port string `value-name:"port" short:"p" long:"port" default:"8081" description:"simple-kv server port"`
}

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		if flags.WroteHelp(err) {
			return
		} else {
			panic(err)
		}
	}

	if err = Interact(opts.Host, opts.Port); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func Interact(hostname string, port string) error {
	addr := net.JoinHostPort(hostname, port)
	dial, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer dial.Close()

	reader := bufio.NewReader(os.Stdin)
	parser := parsers.NewParser()
	for {
		fmt.Printf("[%s] > ", addr)
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		req, err := parser.Parse(line)
		if err != nil {
			fmt.Println(err)
			continue
		}

		err = req.Send(dial)
		if err != nil {
			return errors.Wrapf(err, "fail to send command: type=%v", req.Type)
		}

		resp, err := protos.ParseCommand(dial)
		if err != nil {
			return errors.Wrapf(err, "fail to parse response: type=%v", req.Type)
		}

		fmt.Println(strings.Join(resp.Payload, " "))
	}
}
