package core

// Event status values. Every normalized event carries exactly one of these.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusUnknown = "unknown"
)

// Event severity values, ordered low to critical.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// UnknownIP is the sentinel source address for events whose log line
// carried no usable IP.
const UnknownIP = "0.0.0.0"

// Windows Security event codes recognized by the parser and detectors.
const (
	CodeLogonSuccess        = 4624
	CodeLogonFailure        = 4625
	CodeExplicitCredentials = 4648
	CodeRegistryModified    = 4657
	CodeAdminLogon          = 4672
	CodeProcessCreation     = 4688
	CodeAccountLockout      = 4740
	CodeKerberosTGT         = 4768
	CodeKerberosService     = 4769
	CodeNetworkShareAccess  = 5145
)

// LogonTypeRemoteInteractive is Windows logon type 10 (RDP).
const LogonTypeRemoteInteractive = 10

// LogonTypeNetwork is Windows logon type 3 (network logon, e.g. SMB).
const LogonTypeNetwork = 3

// EventTypeByCode maps a Windows event code to its semantic event type.
var EventTypeByCode = map[int]string{
	CodeLogonSuccess:        "windows_logon_success",
	CodeLogonFailure:        "windows_logon_failure",
	CodeExplicitCredentials: "windows_explicit_credentials",
	CodeRegistryModified:    "windows_registry_modification",
	CodeAdminLogon:          "windows_admin_logon",
	CodeProcessCreation:     "windows_process_creation",
	CodeAccountLockout:      "windows_account_lockout",
	CodeKerberosTGT:         "windows_kerberos_tgt",
	CodeKerberosService:     "windows_kerberos_service",
	CodeNetworkShareAccess:  "windows_network_share",
}

// Alert types emitted by the detection engine.
const (
	AlertSSHBruteForce       = "ssh_brute_force"
	AlertRDPBruteForce       = "rdp_brute_force"
	AlertPrivilegeEscalation = "privilege_escalation"
	AlertMalware             = "malware_detection"
	AlertLateralMovement     = "lateral_movement"
	AlertDataExfiltration    = "data_exfiltration"
	AlertAnomaly             = "anomaly_detection"
	AlertCorrelatedAttack    = "correlated_attack"
	AlertCompliance          = "compliance_violation"
)
