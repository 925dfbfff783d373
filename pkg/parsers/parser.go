package parsers

import (
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"

	"simple-kv/pkg/protos"
)

type Parser struct {
	Input  string
	Length int
}

func NewParser() *Parser {
	return &Parser{}
}

/*
<command>  := GET <string>
			| PUT <string> <string>
			| BEGIN | COMMIT | ABORT
<string>   := " .*? "
*/

func (p *Parser) Parse(input string) (*protos.Command, error) {
	p.Input = strings.TrimRight(input, "\r\n")
	p.Length = len(p.Input)

	t, next, err := p.getType(0)
	if err != nil {
		return nil, err
	}

	var content []string
	switch t {
	case protos.Get:
		next, err = p.dropSpaces(next)
		if err != nil {
			return nil, err
		}

		var key string
		key, next, err = p.getString(next)
		content = append(content, key)

	case protos.Put:
		next, err = p.dropSpaces(next)
		if err != nil {
			return nil, err
		}

		var key, val string
		if key, next, err = p.getString(next); err != nil {
			break
		}
		if next, err = p.dropSpaces(next); err != nil {
			break
		}
		if val, next, err = p.getString(next); err != nil {
			break
		}
		content = append(content, key, val)

	case protos.Begin, protos.Commit, protos.Abort:
		err = nil
	default:
		err = errors.Newf("invalid type:\n%s", p.errorOn(0))
	}

	if err != nil {
		return nil, err
	}

	if next != p.Length {
		next, _ = p.dropSpaces(next)
	}

	if next != p.Length {
		return nil, errors.Newf("command should terminated here:\n%s", p.errorOn(next))
	}

	return protos.NewCommand(t, content), nil
}

func (p *Parser) dropSpaces(i int) (int, error) {
	if i >= p.Length {
		return i, errors.Newf("should not be terminiated here:\n%s", p.errorOn(i))
	}

	if p.Input[i] != ' ' {
		return i, errors.Newf("a white space needed here:\n%s", p.errorOn(i))
	}

	for i++; i < p.Length; i++ {
		if p.Input[i] != ' ' {
			break
		}
	}

	return i, nil
}

func (p *Parser) getString(i int) (string, int, error) {
	if i >= p.Length {
		return "", i, errors.Newf("should not be terminiated here:\n%s", p.errorOn(i))
	}

	if p.Input[i] != '"' {
		return "", i, errors.Newf("a quotation mark needed here:\n%s", p.errorOn(i))
	}

	j := i + 1
	for ; j < p.Length; j++ {
		if p.Input[j] == '"' {
			break
		}
	}

	if j >= p.Length || p.Input[j] != '"' {
		return "", j, errors.Newf("a quotation mark needed here:\n%s", p.errorOn(j))
	}

	return p.Input[i+1 : j], j + 1, nil
}

func (p *Parser) getType(i int) (protos.CommandType, int, error) {
	if i >= p.Length {
		return protos.Invalid, i, errors.Newf("should not be terminiated here:\n%s", p.errorOn(i))
	}

	t, next, err := p.getChars(i, unicode.IsLetter)
	if err != nil {
		return protos.Invalid, i, err
	}

	return protos.ToCommandType(t), next, err
}

func (p *Parser) getChars(i int, check func(rune) bool) (string, int, error) {
	if i >= p.Length {
		return "", i, errors.Newf("should not be terminiated here:\n%s", p.errorOn(i))
	}

	j := i
	for ; j < p.Length; j++ {
		if !check(rune(p.Input[j])) {
			break
		}
	}
	return p.Input[i:j], j, nil
}

func (p *Parser) errorOn(idx int) string {
	return p.Input + "\n" + strings.Repeat(" ", idx) + "^"
}
