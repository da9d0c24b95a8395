// Command gdbridge loads the demo extension into an in-process host and
// lists its class database or calls its methods.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/gdext-bridge/abi"
	"github.com/wippyai/gdext-bridge/internal/hostsim"
)

func main() {
	var (
		className   = flag.String("class", "", "Class to call a method on")
		methodName  = flag.String("call", "", "Method to call")
		args        = flag.String("args", "", "Arguments (comma-separated; use ; between vector components)")
		all         = flag.Bool("all", false, "Also list native classes")
		logLevel    = flag.String("log", "", "Log level: debug, info, warn, error")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	ctx := context.Background()
	s, err := newSession(ctx, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tty := term.IsTerminal(int(os.Stdout.Fd()))
	switch {
	case *interactive:
		if !tty {
			err = fmt.Errorf("interactive mode needs a terminal")
			break
		}
		err = runInteractive(s)
	case *methodName != "":
		err = callOnce(os.Stdout, s, *className, *methodName, *args)
	default:
		list(os.Stdout, s.classes(*all), tty)
	}
	if closeErr := s.Close(ctx); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func splitArgs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, ";", ",")
	}
	return parts
}

func callOnce(w io.Writer, s *session, class, method, raw string) error {
	if class == "" {
		return fmt.Errorf("-call needs -class")
	}
	result, err := s.call(class, method, splitArgs(raw))
	if err != nil {
		return fmt.Errorf("%s.%s: %w", class, method, err)
	}
	fmt.Fprintf(w, "%s.%s = %s\n", class, method, result)
	return nil
}

// list prints the class database, styled when out is a terminal.
func list(w io.Writer, classes []hostsim.ClassInfo, styled bool) {
	render := func(st lipgloss.Style, s string) string {
		if styled {
			return st.Render(s)
		}
		return s
	}
	for _, c := range classes {
		header := c.Name
		if c.Parent != "" {
			header += " : " + c.Parent
		}
		fmt.Fprintln(w, render(titleStyle, header))
		for _, m := range c.Methods {
			fmt.Fprintf(w, "  %s\n", render(funcStyle, methodSignature(m)))
		}
		for _, p := range c.Properties {
			if p.Usage&(abi.PropertyUsageGroup|abi.PropertyUsageSubgroup) != 0 {
				fmt.Fprintf(w, "  [%s]\n", p.Name)
				continue
			}
			fmt.Fprintf(w, "  var %s: %s\n", p.Name, render(typeStyle, p.Type.String()))
		}
		for _, sig := range c.Signals {
			names := make([]string, len(sig.Args))
			for i, a := range sig.Args {
				names[i] = a.Name + ": " + a.Type.String()
			}
			fmt.Fprintf(w, "  signal %s(%s)\n", sig.Name, strings.Join(names, ", "))
		}
		for _, k := range c.Constants {
			name := k.Name
			if k.Enum != "" {
				name = k.Enum + "." + name
			}
			fmt.Fprintf(w, "  const %s = %d\n", name, k.Value)
		}
		fmt.Fprintln(w)
	}
}
