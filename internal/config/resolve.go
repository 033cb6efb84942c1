package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"strings"
)

// ResolveValue turns a config value into the secret or URL it refers to.
// Supported forms:
//
//	op://vault/item/field[?account=...]  1Password, via `op read`
//	srv://_service._proto.domain/path    first SRV target, as https://host:port/path
//	$(command)                           trimmed stdout of `sh -c command`
//	${VAR} or $VAR                       environment variable
//
// Anything else is returned trimmed.
func ResolveValue(value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", nil
	case strings.HasPrefix(value, "op://"):
		return readOnePassword(value)
	case strings.HasPrefix(value, "srv://"):
		return lookupSRV(value)
	case strings.HasPrefix(value, "$(") && strings.HasSuffix(value, ")"):
		return runCommand("sh", "-c", value[2:len(value)-1])
	default:
		return expandEnv(value), nil
	}
}

func readOnePassword(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("1password: invalid reference %s: %w", ref, err)
	}
	secret := "op://" + u.Host + u.Path
	args := []string{"read", secret}
	if account := u.Query().Get("account"); account != "" {
		args = append(args, "--account", account)
	}
	out, err := runCommand("op", args...)
	if err != nil {
		return "", fmt.Errorf("1password: read %s (is the op CLI signed in?): %w", secret, err)
	}
	return out, nil
}

func lookupSRV(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid srv:// URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("srv:// URL missing record: %s", ref)
	}
	_, addrs, err := net.LookupSRV("", "", u.Host)
	if err != nil {
		return "", fmt.Errorf("SRV lookup for %s: %w", u.Host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no SRV records for %s", u.Host)
	}
	// The resolver returns records sorted by priority and weight.
	target := strings.TrimSuffix(addrs[0].Target, ".")
	return fmt.Sprintf("https://%s:%d%s", target, addrs[0].Port, u.Path), nil
}

func runCommand(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("command failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("command failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
