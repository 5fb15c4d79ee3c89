// Package services provides service classification for portwarden.
// It maps port numbers and captured banners to best-guess service labels
// using a static well-known-port table refined by ordered banner rules.
package services

import (
	"sort"
	"strings"
)

// UnknownService is the label used for ports with no table entry.
const UnknownService = "unknown"

// httpsPort is the port where an HTTP banner is classified as https.
const httpsPort = 443

// commonServices maps well-known port numbers to service labels.
var commonServices = map[uint16]string{
	7:     "echo",
	20:    "ftp-data",
	21:    "ftp",
	22:    "ssh",
	23:    "telnet",
	25:    "smtp",
	43:    "whois",
	53:    "dns",
	67:    "dhcp",
	68:    "dhcp",
	69:    "tftp",
	80:    "http",
	110:   "pop3",
	115:   "sftp",
	119:   "nntp",
	123:   "ntp",
	137:   "netbios-ns",
	138:   "netbios-dgm",
	139:   "netbios-ssn",
	143:   "imap",
	161:   "snmp",
	179:   "bgp",
	194:   "irc",
	389:   "ldap",
	443:   "https",
	445:   "smb",
	514:   "syslog",
	515:   "printer",
	587:   "smtps",
	631:   "ipp",
	636:   "ldaps",
	993:   "imaps",
	995:   "pop3s",
	1080:  "socks",
	1194:  "openvpn",
	1433:  "mssql",
	1723:  "pptp",
	1900:  "upnp",
	2082:  "cpanel",
	2083:  "cpanel-ssl",
	2086:  "whm",
	2087:  "whm-ssl",
	2095:  "webmail",
	2096:  "webmail-ssl",
	2181:  "zookeeper",
	2375:  "docker",
	2376:  "docker-ssl",
	2483:  "oracle",
	2484:  "oracle-ssl",
	3000:  "nodejs",
	3306:  "mysql",
	3389:  "rdp",
	5432:  "postgresql",
	5500:  "vnc",
	5601:  "kibana",
	5672:  "amqp",
	5900:  "vnc",
	5938:  "teamviewer",
	6379:  "redis",
	6443:  "kubernetes",
	6666:  "irc",
	6667:  "irc",
	8000:  "http-alt",
	8008:  "http-alt",
	8080:  "http-proxy",
	8081:  "http-alt",
	8443:  "https-alt",
	8888:  "http-alt",
	9000:  "php-fpm",
	9042:  "cassandra",
	9092:  "kafka",
	9200:  "elasticsearch",
	9300:  "elasticsearch",
	11211: "memcached",
	27017: "mongodb",
	27018: "mongodb",
	27019: "mongodb",
	28017: "mongodb",
	50000: "db2",
}

// bannerRule matches a keyword in a lowercased banner and maps it to a label.
type bannerRule struct {
	keyword string
	label   func(port uint16) string
}

// bannerRules are evaluated in order and the first match wins. Order matters:
// a banner can contain several keywords (an SSH banner mentioning "http", for
// example), so the list is fixed and must not be reordered.
var bannerRules = []bannerRule{
	{keyword: "ssh", label: func(uint16) string { return "ssh" }},
	{keyword: "http", label: func(port uint16) string {
		if port == httpsPort {
			return "https"
		}
		return "http"
	}},
	{keyword: "smtp", label: func(uint16) string { return "smtp" }},
	{keyword: "ftp", label: func(uint16) string { return "ftp" }},
	{keyword: "mysql", label: func(uint16) string { return "mysql" }},
}

// Classify returns the best-guess service label for a port and optional
// banner. It is a pure function, defined for every port and banner value.
// The base label comes from the well-known-port table; a non-empty banner
// is matched case-insensitively against the ordered rule list and the first
// matching rule overrides the base label.
func Classify(port uint16, banner string) string {
	service := BaseService(port)

	if banner == "" {
		return service
	}

	lower := strings.ToLower(banner)
	for _, rule := range bannerRules {
		if strings.Contains(lower, rule.keyword) {
			return rule.label(port)
		}
	}

	return service
}

// BaseService returns the table label for a port without banner refinement.
func BaseService(port uint16) string {
	if service, ok := commonServices[port]; ok {
		return service
	}
	return UnknownService
}

// KnownPorts returns the well-known ports from the service table in
// ascending order.
func KnownPorts() []uint16 {
	ports := make([]uint16, 0, len(commonServices))
	for port := range commonServices {
		ports = append(ports, port)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}
