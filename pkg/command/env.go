package command

import "strings"

// DenyRule removes every environment variable whose upper-cased name starts
// with Prefix.
type DenyRule struct {
	Prefix string
	Reason string
}

// DenyPolicy is the table of credential-bearing variables stripped from the
// child environment. It is defense in depth for accidental leakage only: the
// child still runs as the server's user with full access to anything that
// user can reach, so it is not a sandboxing guarantee.
var DenyPolicy = []DenyRule{
	{Prefix: "AWS_", Reason: "AWS credentials and profiles"},
	{Prefix: "GCP_", Reason: "Google Cloud credentials"},
	{Prefix: "GOOGLE_APPLICATION_CREDENTIALS", Reason: "Google Cloud service account key"},
	{Prefix: "AZURE_", Reason: "Azure credentials"},
	{Prefix: "DOCKER_", Reason: "Docker daemon socket and registry auth"},
	{Prefix: "KUBECONFIG", Reason: "Kubernetes cluster credentials"},
	{Prefix: "SSH_", Reason: "SSH agent socket"},
}

// Denied reports whether the named variable matches a rule in policy.
func Denied(policy []DenyRule, name string) bool {
	upper := strings.ToUpper(name)
	for _, rule := range policy {
		if strings.HasPrefix(upper, rule.Prefix) {
			return true
		}
	}
	return false
}

// FilterEnv returns environ (KEY=VALUE entries) without the variables
// matched by DenyPolicy.
func FilterEnv(environ []string) []string {
	return filterEnv(DenyPolicy, environ)
}

func filterEnv(policy []DenyRule, environ []string) []string {
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, _ := strings.Cut(kv, "=")
		if Denied(policy, name) {
			continue
		}
		out = append(out, kv)
	}
	return out
}
