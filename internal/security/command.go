package security

import (
	"regexp"
	"strings"
)

// DenyPatterns is the default table of dangerous shell constructs rejected
// before any command reaches exec.Command. Defense-in-depth: these
// complement OS-level hardening (dropped capabilities, read-only rootfs,
// pid/memory limits) rather than replace it.
// Sources: OWASP Agentic AI Top 10, MITRE ATT&CK, PayloadsAllTheThings,
// and public agentic-coding-tool command-injection writeups.
var DenyPatterns = []*regexp.Regexp{
	// Destructive file operations.
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`\brm\s+.*--recursive`),
	regexp.MustCompile(`\brm\s+.*--force`),
	regexp.MustCompile(`\bdel\s+/[fq]\b`),
	regexp.MustCompile(`\brmdir\s+/s\b`),
	regexp.MustCompile(`\b(mkfs|diskpart)\b|\bformat\s`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), // fork bomb

	// Data exfiltration.
	regexp.MustCompile(`\bcurl\b.*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bcurl\b.*(-d\b|-F\b|--data|--upload|--form|-T\b|-X\s*P(UT|OST|ATCH))`),
	regexp.MustCompile(`\bwget\b.*-O\s*-\s*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bwget\b.*--post-(data|file)`),
	regexp.MustCompile(`\b(nslookup|dig|host)\b`),
	regexp.MustCompile(`/dev/tcp/`),

	// Reverse shells.
	regexp.MustCompile(`\b(nc|ncat|netcat)\b.*-[el]\b`),
	regexp.MustCompile(`\bsocat\b`),
	regexp.MustCompile(`\bopenssl\b.*s_client`),
	regexp.MustCompile(`\btelnet\b.*\d+`),
	regexp.MustCompile(`\bpython[23]?\b.*\bimport\s+(socket|http\.client|urllib|requests)\b`),
	regexp.MustCompile(`\bperl\b.*-e\s*.*\b[Ss]ocket\b`),
	regexp.MustCompile(`\bruby\b.*-e\s*.*\b(TCPSocket|Socket)\b`),
	regexp.MustCompile(`\bnode\b.*-e\s*.*\b(net\.connect|child_process)\b`),
	regexp.MustCompile(`\bawk\b.*/inet/`),
	regexp.MustCompile(`\bmkfifo\b`),

	// Eval / code injection.
	regexp.MustCompile(`\beval\s*\$`),
	regexp.MustCompile(`\bbase64\s+-d\b.*\|\s*(ba)?sh\b`),

	// Privilege escalation.
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bsu\s+-`),
	regexp.MustCompile(`\bnsenter\b`),
	regexp.MustCompile(`\bunshare\b`),
	regexp.MustCompile(`\b(mount|umount)\b`),
	regexp.MustCompile(`\b(capsh|setcap|getcap)\b`),

	// Dangerous path operations.
	regexp.MustCompile(`\bchmod\s+[0-7]{3,4}\s+/`),
	regexp.MustCompile(`\bchown\b.*\s+/`),
	regexp.MustCompile(`\bchmod\b.*\+x.*/tmp/`),
	regexp.MustCompile(`\bchmod\b.*\+x.*/var/tmp/`),
	regexp.MustCompile(`\bchmod\b.*\+x.*/dev/shm/`),

	// Environment variable injection.
	regexp.MustCompile(`\bLD_PRELOAD\s*=`),
	regexp.MustCompile(`\bDYLD_INSERT_LIBRARIES\s*=`),
	regexp.MustCompile(`\bLD_LIBRARY_PATH\s*=`),
	regexp.MustCompile(`/etc/ld\.so\.preload`),
	regexp.MustCompile(`\bGIT_EXTERNAL_DIFF\s*=`),
	regexp.MustCompile(`\bGIT_DIFF_OPTS\s*=`),
	regexp.MustCompile(`\bBASH_ENV\s*=`),
	regexp.MustCompile(`\bENV\s*=.*\bsh\b`),

	// Container escape.
	regexp.MustCompile(`/var/run/docker\.sock|docker\.(sock|socket)`),
	regexp.MustCompile(`/proc/sys/(kernel|fs|net)/`),
	regexp.MustCompile(`/sys/(kernel|fs|class|devices)/`),

	// Crypto mining.
	regexp.MustCompile(`\b(xmrig|cpuminer|minerd|cgminer|bfgminer|ethminer|nbminer|t-rex|phoenixminer|lolminer|gminer|claymore)\b`),
	regexp.MustCompile(`stratum\+tcp://|stratum\+ssl://`),

	// Filter bypass via uncommon flags.
	regexp.MustCompile(`\bsed\b.*['"]/e\b`),
	regexp.MustCompile(`\bsort\b.*--compress-program`),
	regexp.MustCompile(`\bgit\b.*(--upload-pack|--receive-pack|--exec)=`),
	regexp.MustCompile(`\b(rg|grep)\b.*--pre=`),
	regexp.MustCompile(`\bman\b.*--html=`),
	regexp.MustCompile(`\bhistory\b.*-[saw]\b`),
	regexp.MustCompile(`\$\{[^}]*@[PpEeAaKk]\}`),

	// Network abuse / reconnaissance.
	regexp.MustCompile(`\b(nmap|masscan|zmap|rustscan)\b`),
	regexp.MustCompile(`\b(ssh|scp|sftp)\b.*@`),
	regexp.MustCompile(`\b(chisel|frp|ngrok|cloudflared|bore|localtunnel)\b`),

	// Persistence.
	regexp.MustCompile(`\bcrontab\b`),
	regexp.MustCompile(`>\s*~/?\.(bashrc|bash_profile|profile|zshrc)`),
	regexp.MustCompile(`\btee\b.*\.(bashrc|bash_profile|profile|zshrc)`),

	// Process manipulation.
	regexp.MustCompile(`\bkill\s+-9\s`),
	regexp.MustCompile(`\b(killall|pkill)\b`),

	// Environment variable dumping.
	regexp.MustCompile(`^\s*env\s*$`),
	regexp.MustCompile(`^\s*env\s*\|`),
	regexp.MustCompile(`^\s*env\s*>\s`),
	regexp.MustCompile(`\bprintenv\b`),
	regexp.MustCompile(`^\s*(set|export\s+-p|declare\s+-x)\s*($|\|)`),
	regexp.MustCompile(`\bcompgen\s+-e\b`),
}

// CommandGuard validates shell commands against the deny-pattern table.
type CommandGuard struct {
	patterns []*regexp.Regexp
}

// NewCommandGuard builds a guard using DenyPatterns plus any extras.
func NewCommandGuard(extra ...*regexp.Regexp) *CommandGuard {
	patterns := make([]*regexp.Regexp, 0, len(DenyPatterns)+len(extra))
	patterns = append(patterns, DenyPatterns...)
	patterns = append(patterns, extra...)
	return &CommandGuard{patterns: patterns}
}

// Check returns a non-nil error naming the matched pattern if command
// matches any denied construct.
func (g *CommandGuard) Check(command string) error {
	for _, p := range g.patterns {
		if p.MatchString(command) {
			return &DeniedError{Command: command, Pattern: p.String()}
		}
	}
	return nil
}

// DeniedError reports which pattern rejected a command.
type DeniedError struct {
	Command string
	Pattern string
}

func (e *DeniedError) Error() string {
	return "command denied by safety policy: matches pattern " + e.Pattern
}

// StripShellMetacharacters removes shell-special characters from a single
// argument that will be interpolated into a non-shell exec.Command argv,
// as a second line of defense against accidental shell reinterpretation.
func StripShellMetacharacters(arg string) string {
	var b strings.Builder
	for _, r := range arg {
		switch r {
		case ';', '|', '&', '$', '`', '>', '<', '\n', '\r':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
