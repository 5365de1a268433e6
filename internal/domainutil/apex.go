package domainutil

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ErrInvalidDomain 域名不合法
var ErrInvalidDomain = errors.New("invalid domain")

const challengeLabel = "_acme-challenge"

// Normalize 对域名进行规范化处理
// 规则：
//   - 小写、trim 空格、去掉末尾 .
//   - 拒绝 IP（IPv4/IPv6）和端口
//   - 只允许 a-z 0-9 - 以及最左侧的 *.
//   - 每个 label 1~63 字符，不能以 - 开头或结尾，总长度不超过 253
//   - 至少包含两个 label
func Normalize(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")

	if host == "" {
		return "", fmt.Errorf("%w: domain must not be empty", ErrInvalidDomain)
	}

	if net.ParseIP(strings.Trim(host, "[]")) != nil {
		return "", fmt.Errorf("%w: IP address is not allowed: %s", ErrInvalidDomain, host)
	}

	if len(host) > 253 {
		return "", fmt.Errorf("%w: domain too long: %s", ErrInvalidDomain, host)
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return "", fmt.Errorf("%w: domain must contain at least one dot: %s", ErrInvalidDomain, host)
	}

	for i, label := range labels {
		if label == "*" && i == 0 {
			continue
		}
		if err := checkLabel(label); err != nil {
			return "", fmt.Errorf("%w: %s in %s", ErrInvalidDomain, err.Error(), host)
		}
	}

	// *.com 这种通配符没有意义
	if labels[0] == "*" && len(labels) < 3 {
		return "", fmt.Errorf("%w: wildcard needs a registrable base: %s", ErrInvalidDomain, host)
	}

	return host, nil
}

func checkLabel(label string) error {
	if label == "" {
		return fmt.Errorf("empty label")
	}
	if len(label) > 63 {
		return fmt.Errorf("label longer than 63 characters")
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return fmt.Errorf("label must not start or end with '-'")
	}
	for _, r := range label {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return fmt.Errorf("invalid character %q", r)
		}
	}
	return nil
}

// NormalizeList 规范化并去重，保持首次出现的顺序
func NormalizeList(domains []string) ([]string, error) {
	if len(domains) == 0 {
		return nil, fmt.Errorf("%w: domains list must not be empty", ErrInvalidDomain)
	}

	seen := make(map[string]struct{}, len(domains))
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		normalized, err := Normalize(d)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}

// EffectiveApex 使用 PSL 计算 eTLD+1（注册域名/授权根）
// 例如：
//   - www.example.com -> example.com
//   - a.b.example.co.uk -> example.co.uk
//   - *.example.com -> example.com
//
// 项目内任何地方不得自行 split 计算 apex，必须调用此函数
func EffectiveApex(domain string) (string, error) {
	normalized, err := Normalize(domain)
	if err != nil {
		return "", fmt.Errorf("normalize failed for %s: %w", domain, err)
	}

	normalized = strings.TrimPrefix(normalized, "*.")

	apex, err := publicsuffix.EffectiveTLDPlusOne(normalized)
	if err != nil {
		return "", fmt.Errorf("PSL lookup failed for %s: %w", domain, err)
	}

	return apex, nil
}

// ZoneCandidates 返回记录名可能所属的 zone，从长到短，止于 eTLD+1
// 记录名可以带 _ 标签（_acme-challenge），也可以是 CNAME 之后的目标名，
// 因此这里不走 Normalize
//   - _acme-challenge.www.example.com. -> [_acme-challenge.www.example.com www.example.com example.com]
func ZoneCandidates(fqdn string) ([]string, error) {
	name := strings.ToLower(UnFqdn(strings.TrimSpace(fqdn)))
	if name == "" {
		return nil, fmt.Errorf("%w: record name must not be empty", ErrInvalidDomain)
	}

	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return nil, fmt.Errorf("%w: no registrable domain in %s: %v", ErrInvalidDomain, name, err)
	}

	var out []string
	for n := name; ; {
		out = append(out, n)
		if n == apex {
			return out, nil
		}
		i := strings.IndexByte(n, '.')
		if i < 0 {
			return out, nil
		}
		n = n[i+1:]
	}
}

// ChallengeFQDN 返回 DNS-01 记录名，通配符与裸域共用同一条记录
//   - example.com -> _acme-challenge.example.com.
//   - *.example.com -> _acme-challenge.example.com.
func ChallengeFQDN(domain string) string {
	domain = strings.TrimSuffix(strings.TrimPrefix(strings.ToLower(domain), "*."), ".")
	return challengeLabel + "." + domain + "."
}

// UnFqdn 去掉末尾的 .
func UnFqdn(name string) string {
	return strings.TrimSuffix(name, ".")
}
