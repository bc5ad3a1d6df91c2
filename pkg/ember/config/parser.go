package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type parser struct {
	toks []token
	pos  int
	file string
}

func (p *parser) peek() *token {
	if p.pos >= len(p.toks) {
		return nil
	}
	return &p.toks[p.pos]
}

func (p *parser) next() *token {
	t := p.peek()
	if t != nil {
		p.pos++
	}
	return t
}

func (p *parser) expect(text string) (*token, error) {
	t := p.next()
	if t == nil {
		return nil, fmt.Errorf("config: %s: unexpected EOF, expected %q", p.file, text)
	}
	if t.text != text {
		return nil, fmt.Errorf("config: %s:%d: expected %q, got %q", p.file, t.line, text, t.text)
	}
	return t, nil
}

// Parse parses the contents of a config file into its server blocks.
func Parse(src, filename string) ([]*ServerConfig, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, file: filename}

	var servers []*ServerConfig
	for p.peek() != nil {
		t := p.next()
		if t.text != "server" {
			return nil, fmt.Errorf("config: %s:%d: expected 'server' block, got %q", filename, t.line, t.text)
		}
		sc, err := p.parseServerBlock()
		if err != nil {
			return nil, err
		}
		servers = append(servers, sc)
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("config: %s: no server blocks defined", filename)
	}
	return servers, nil
}

func (p *parser) parseServerBlock() (*ServerConfig, error) {
	openTok, err := p.expect("{")
	if err != nil {
		return nil, err
	}
	sc := &ServerConfig{
		ErrorPages: map[int]string{},
		SourceFile: p.file,
		SourceLine: openTok.line,
		Timeout:    60 * time.Second,
	}

	for {
		t := p.peek()
		if t == nil {
			return nil, fmt.Errorf("config: %s: unexpected EOF in server block", p.file)
		}
		if t.text == "}" {
			p.next()
			break
		}
		if t.text == "location" {
			p.next()
			loc, err := p.parseLocationBlock()
			if err != nil {
				return nil, err
			}
			sc.Locations = append(sc.Locations, *loc)
			continue
		}
		name, args, err := p.readDirective()
		if err != nil {
			return nil, err
		}
		if err := applyServerDirective(sc, name, args); err != nil {
			return nil, err
		}
	}

	if len(sc.Ports) == 0 {
		return nil, fmt.Errorf("config: %s:%d: server block missing 'listen' directive", p.file, sc.SourceLine)
	}
	if sc.Root == "" {
		return nil, fmt.Errorf("config: %s:%d: server block missing 'root' directive", p.file, sc.SourceLine)
	}
	return sc, nil
}

func (p *parser) parseLocationBlock() (*Location, error) {
	prefixTok := p.next()
	if prefixTok == nil {
		return nil, fmt.Errorf("config: %s: unexpected EOF, expected location prefix", p.file)
	}
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	loc := &Location{
		Prefix:     prefixTok.text,
		Methods:    map[string]bool{},
		CGI:        map[string]string{},
		SourceLine: prefixTok.line,
	}
	for {
		t := p.peek()
		if t == nil {
			return nil, fmt.Errorf("config: %s: unexpected EOF in location block", p.file)
		}
		if t.text == "}" {
			p.next()
			break
		}
		name, args, err := p.readDirective()
		if err != nil {
			return nil, err
		}
		if err := applyLocationDirective(loc, name, args); err != nil {
			return nil, err
		}
	}
	return loc, nil
}

// readDirective reads "name arg arg ...;" and returns name and args.
func (p *parser) readDirective() (string, []string, error) {
	nameTok := p.next()
	if nameTok == nil {
		return "", nil, fmt.Errorf("config: %s: unexpected EOF reading directive", p.file)
	}
	var args []string
	for {
		t := p.peek()
		if t == nil {
			return "", nil, fmt.Errorf("config: %s: directive %q missing ';'", p.file, nameTok.text)
		}
		if t.text == ";" {
			p.next()
			break
		}
		args = append(args, p.next().text)
	}
	return nameTok.text, args, nil
}

func applyServerDirective(sc *ServerConfig, name string, args []string) error {
	switch name {
	case "listen":
		if len(args) == 0 {
			return fmt.Errorf("config: %s:%d: 'listen' requires an argument", sc.SourceFile, sc.SourceLine)
		}
		for _, a := range args {
			host, port, err := splitHostPort(a)
			if err != nil {
				return err
			}
			if host != "" {
				sc.BindAddress = host
			}
			sc.Ports = append(sc.Ports, port)
		}
	case "server_name":
		for _, a := range args {
			sc.ServerNames = append(sc.ServerNames, strings.ToLower(a))
		}
	case "root":
		if len(args) != 1 {
			return fmt.Errorf("config: %s: 'root' takes exactly one argument", sc.SourceFile)
		}
		sc.Root = args[0]
	case "client_max_body_size":
		if len(args) != 1 {
			return fmt.Errorf("config: %s: 'client_max_body_size' takes exactly one argument", sc.SourceFile)
		}
		n, err := parseByteSize(args[0])
		if err != nil {
			return err
		}
		sc.ClientMaxBodySize = n
	case "timeout":
		if len(args) != 1 {
			return fmt.Errorf("config: %s: 'timeout' takes exactly one argument", sc.SourceFile)
		}
		secs, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("config: %s: invalid timeout %q: %w", sc.SourceFile, args[0], err)
		}
		sc.Timeout = time.Duration(secs) * time.Second
	case "error_page":
		if len(args) < 2 {
			return fmt.Errorf("config: %s: 'error_page' requires one or more codes and a path", sc.SourceFile)
		}
		path := args[len(args)-1]
		for _, codeStr := range args[:len(args)-1] {
			code, err := strconv.Atoi(codeStr)
			if err != nil {
				return fmt.Errorf("config: %s: invalid error_page status %q: %w", sc.SourceFile, codeStr, err)
			}
			sc.ErrorPages[code] = path
		}
	default:
		return fmt.Errorf("config: %s: unknown server directive %q", sc.SourceFile, name)
	}
	return nil
}

func applyLocationDirective(loc *Location, name string, args []string) error {
	switch name {
	case "methods":
		if len(args) == 0 {
			return fmt.Errorf("config: 'methods' requires at least one method")
		}
		for _, m := range args {
			loc.Methods[strings.ToUpper(m)] = true
		}
	case "index":
		if len(args) != 1 {
			return fmt.Errorf("config: 'index' takes exactly one argument")
		}
		loc.Index = args[0]
	case "autoindex":
		if len(args) != 1 {
			return fmt.Errorf("config: 'autoindex' takes exactly one argument")
		}
		loc.Autoindex = args[0] == "on"
	case "cgi":
		if len(args) != 2 {
			return fmt.Errorf("config: 'cgi' takes exactly two arguments: extension and interpreter path")
		}
		loc.CGI[args[0]] = args[1]
	case "upload_store":
		if len(args) != 1 {
			return fmt.Errorf("config: 'upload_store' takes exactly one argument")
		}
		loc.UploadDir = args[0]
	case "strip_prefix":
		if len(args) != 1 {
			return fmt.Errorf("config: 'strip_prefix' takes exactly one argument")
		}
		loc.StripPrefix = args[0] == "on"
	case "return":
		switch len(args) {
		case 1:
			loc.Redirect = &Redirect{Code: 302, Target: args[0]}
		case 2:
			code, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("config: invalid return status %q: %w", args[0], err)
			}
			loc.Redirect = &Redirect{Code: code, Target: args[1]}
		default:
			return fmt.Errorf("config: 'return' takes one or two arguments")
		}
	default:
		return fmt.Errorf("config: unknown location directive %q", name)
	}
	return nil
}

func splitHostPort(s string) (host string, port int, err error) {
	idx := strings.LastIndex(s, ":")
	portStr := s
	if idx >= 0 {
		host = s[:idx]
		portStr = s[idx+1:]
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("config: invalid listen address %q: %w", s, err)
	}
	return host, port, nil
}

func parseByteSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("config: empty size value")
	}
	mult := int64(1)
	last := s[len(s)-1]
	switch last {
	case 'k', 'K':
		mult = 1024
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid size %q: %w", s, err)
	}
	return n * mult, nil
}
