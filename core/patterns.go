package core

import (
	"regexp"
	"strings"
)

// Pattern sets shared by the normalizer and the malware / data
// exfiltration detectors. Compiled once at package init.

var suspiciousProcessPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)powershell.*-enc`),
	regexp.MustCompile(`(?i)powershell.*-e\s`),
	regexp.MustCompile(`(?i)cmd\.exe.*/c`),
	regexp.MustCompile(`(?i)wscript\.exe`),
	regexp.MustCompile(`(?i)cscript\.exe`),
	regexp.MustCompile(`(?i)rundll32\.exe`),
	regexp.MustCompile(`(?i)regsvr32\.exe`),
	regexp.MustCompile(`(?i)mshta\.exe`),
	regexp.MustCompile(`(?i)temp`),
	regexp.MustCompile(`(?i)appdata.*local.*temp`),
}

var sensitiveFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)sensitive`),
	regexp.MustCompile(`(?i)confidential`),
	regexp.MustCompile(`(?i)secret`),
	regexp.MustCompile(`(?i)password`),
	regexp.MustCompile(`(?i)credential`),
	regexp.MustCompile(`(?i)database`),
	regexp.MustCompile(`(?i)backup`),
	regexp.MustCompile(`(?i)\.pwd$`),
	regexp.MustCompile(`(?i)\.key$`),
	regexp.MustCompile(`(?i)\.pem$`),
	regexp.MustCompile(`(?i)\.db$`),
	regexp.MustCompile(`(?i)\.sql$`),
}

// SensitivePrivilegePattern matches privilege lists granting debug,
// TCB, backup or restore rights.
var SensitivePrivilegePattern = regexp.MustCompile(`(?i)Se(Debug|Tcb|Backup|Restore)Privilege`)

var privateIPPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^10\.`),
	regexp.MustCompile(`^172\.(1[6-9]|2[0-9]|3[01])\.`),
	regexp.MustCompile(`^192\.168\.`),
	regexp.MustCompile(`^127\.`),
	regexp.MustCompile(`^169\.254\.`),
}

// IsSuspiciousProcess reports whether a process name or command line
// matches a known suspicious execution pattern (encoded PowerShell,
// LOLBin invocation, execution from temp paths).
func IsSuspiciousProcess(processName, commandLine string) bool {
	if processName == "" && commandLine == "" {
		return false
	}
	check := strings.ToLower(processName + " " + commandLine)
	for _, p := range suspiciousProcessPatterns {
		if p.MatchString(check) {
			return true
		}
	}
	return false
}

// IsSensitiveFile reports whether a file path looks like it references
// sensitive material (credentials, secrets, database dumps, backups).
func IsSensitiveFile(filePath string) bool {
	if filePath == "" {
		return false
	}
	for _, p := range sensitiveFilePatterns {
		if p.MatchString(filePath) {
			return true
		}
	}
	return false
}

// IsPrivateIP reports whether ip falls in the RFC1918 private ranges,
// loopback, or link-local space.
func IsPrivateIP(ip string) bool {
	if ip == "" {
		return false
	}
	for _, p := range privateIPPatterns {
		if p.MatchString(ip) {
			return true
		}
	}
	return false
}
