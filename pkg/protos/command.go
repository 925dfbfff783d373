package protos

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/cockroachdb/errors"

	"simple-kv/pkg/config"
)

type CommandType byte

const (
	Get CommandType = iota
	Put
	Begin
	Commit
	Abort

	String
	Error

	Invalid
)

// CommandHeaderLength is an 8-byte payload length followed by the type byte.
const CommandHeaderLength = 9

func ToCommandType(t string) CommandType {
	switch strings.ToUpper(t) {
	case "GET":
		return Get
	case "PUT":
		return Put
	case "BEGIN":
		return Begin
	case "COMMIT":
		return Commit
	case "ABORT":
		return Abort
	case "STRING":
		return String
	case "ERROR":
		return Error
	default:
		return Invalid
	}
}

func (t CommandType) String() string {
	switch t {
	case Get:
		return "GET"
	case Put:
		return "PUT"
	case Begin:
		return "BEGIN"
	case Commit:
		return "COMMIT"
	case Abort:
		return "ABORT"
	case String:
		return "STRING"
	case Error:
		return "ERROR"
	default:
		return "INVALID"
	}
}

// Arity is the number of payload strings a request of type t carries.
func (t CommandType) Arity() int {
	switch t {
	case Get:
		return 1
	case Put:
		return 2
	default:
		return 0
	}
}

type Command struct {
	PayloadLength uint64
	Type          CommandType
	Payload       []string
}

func NewCommand(t CommandType, payload []string) *Command {
	return &Command{
		PayloadLength: calcPayloadLength(payload),
		Type:          t,
		Payload:       payload,
	}
}

func NewStringCommand(s string) *Command {
	return NewCommand(String, []string{s})
}

func NewErrorCommand(err error) *Command {
	return NewCommand(Error, []string{err.Error()})
}

// ErrPayloadTooLarge leaves the stream unframed; the connection must be dropped.
var ErrPayloadTooLarge = errors.New("payload too large")

func ParseCommand(r io.Reader) (*Command, error) {
	header := make([]byte, CommandHeaderLength)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	command := &Command{
		PayloadLength: binary.BigEndian.Uint64(header),
		Type:          CommandType(header[8]),
	}
	if command.Type >= Invalid {
		return nil, errors.Newf("invalid command type: type=%d", command.Type)
	}
	if command.PayloadLength > config.MaxPayloadLength {
		err := errors.Newf("payload too large: length=%d, max=%d", command.PayloadLength, config.MaxPayloadLength)
		return nil, errors.Mark(err, ErrPayloadTooLarge)
	}

	payload := make([]byte, command.PayloadLength)
	if n, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrapf(err, "received message content size: expect=%d, got=%d", command.PayloadLength, n)
	}

	var err error
	command.Payload, err = parsePayload(payload)
	if err != nil {
		return nil, err
	}
	return command, nil
}

func calcPayloadLength(payload []string) uint64 {
	length := 0
	for _, p := range payload {
		length += 8 + len(p)
	}
	return uint64(length)
}

func parsePayload(buffer []byte) ([]string, error) {
	var res []string
	length := uint64(len(buffer))
	for i := uint64(0); i < length; {
		if length-i < 8 {
			return nil, errors.Newf("truncated payload: offset=%d, length=%d", i, length)
		}
		l := binary.BigEndian.Uint64(buffer[i:])
		if l > length-i-8 {
			return nil, errors.Newf("truncated payload: offset=%d, size=%d, length=%d", i, l, length)
		}
		res = append(res, string(buffer[i+8:i+8+l]))
		i += 8 + l
	}
	return res, nil
}

func (c *Command) Serialize() []byte {
	c.PayloadLength = calcPayloadLength(c.Payload)
	buffer := make([]byte, CommandHeaderLength+c.PayloadLength)
	binary.BigEndian.PutUint64(buffer, c.PayloadLength)
	buffer[8] = byte(c.Type)

	i := CommandHeaderLength
	for _, payload := range c.Payload {
		binary.BigEndian.PutUint64(buffer[i:], uint64(len(payload)))
		copy(buffer[i+8:], payload)
		i += 8 + len(payload)
	}
	return buffer
}

func (c *Command) Send(w io.Writer) error {
	_, err := w.Write(c.Serialize())
	return err
}
