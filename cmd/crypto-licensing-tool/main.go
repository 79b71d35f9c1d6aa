// Command crypto-licensing-tool is a minimal illustrative front end over
// the authority engine: enough to create a keypair, issue a license,
// verify one, and enumerate valid (keypair, license) pairs from a
// search path. The HTTP server, GUI, and full CLI are out of scope —
// this binary exists to exercise the exported package surface end to
// end with real exit codes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dominion-rnd/crypto-licensing/config"
	"github.com/dominion-rnd/crypto-licensing/discovery"
	"github.com/dominion-rnd/crypto-licensing/dnsresolver"
	"github.com/dominion-rnd/crypto-licensing/internal/redact"
	"github.com/dominion-rnd/crypto-licensing/keystore"
	"github.com/dominion-rnd/crypto-licensing/licensing"
	"github.com/dominion-rnd/crypto-licensing/machineid"
)

const (
	exitOK                 = 0
	exitNoValidPair        = 1
	exitBadCredentials     = 2
	exitVerificationFailed = 3
	exitIOOrDNSError       = 4
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	logger := slog.New(redact.WrapHandler(slog.NewTextHandler(os.Stderr, nil)))
	slog.SetDefault(logger)

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to crypto-licensing.yaml (optional)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("crypto-licensing-tool version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		os.Exit(exitOK)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadFromPath(*configPath)

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: crypto-licensing-tool <create-keypair|issue|verify|discover> [args]")
		os.Exit(exitIOOrDNSError)
	}

	var code int
	switch args[0] {
	case "create-keypair":
		code = runCreateKeypair(args[1:])
	case "issue":
		code = runIssue(ctx, args[1:])
	case "verify":
		code = runVerify(ctx, args[1:])
	case "discover":
		code = runDiscover(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		code = exitIOOrDNSError
	}
	os.Exit(code)
}

func runCreateKeypair(args []string) int {
	fs := flag.NewFlagSet("create-keypair", flag.ContinueOnError)
	product := fs.String("product", "", "product name")
	username := fs.String("username", "", "owner username")
	password := fs.String("password", "", "owner password")
	out := fs.String("out", "", "output .crypto-keypair path")
	seedFile := fs.String("seed-file", "", "recover the keypair from a .crypto-seed file instead of generating one")
	mnemonic := fs.String("mnemonic", "", "recover the keypair from a BIP-39 mnemonic instead of generating one")
	seedOut := fs.String("seed-out", "", "when generating a fresh seed, also write it to this .crypto-seed path and log its mnemonic")
	if err := fs.Parse(args); err != nil {
		return exitIOOrDNSError
	}
	if *product == "" || *username == "" || *password == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "create-keypair requires -product -username -password -out")
		return exitIOOrDNSError
	}
	if *seedFile != "" && *mnemonic != "" {
		fmt.Fprintln(os.Stderr, "create-keypair accepts at most one of -seed-file or -mnemonic")
		return exitIOOrDNSError
	}

	var seed []byte
	switch {
	case *seedFile != "":
		s, err := keystore.SeedFromFile(*seedFile)
		if err != nil {
			slog.Error("reading seed file failed", "error", err)
			return exitBadCredentials
		}
		seed = s
	case *mnemonic != "":
		s, err := keystore.ImportMnemonic(*mnemonic)
		if err != nil {
			slog.Error("importing mnemonic failed", "error", err)
			return exitBadCredentials
		}
		seed = s
	case *seedOut != "":
		s, err := keystore.GenerateSeed()
		if err != nil {
			slog.Error("generating seed failed", "error", err)
			return exitIOOrDNSError
		}
		if err := keystore.SaveSeedFile(*seedOut, s); err != nil {
			slog.Error("saving seed file failed", "error", err)
			return exitIOOrDNSError
		}
		if words, err := keystore.ExportMnemonic(s); err == nil {
			slog.Info("seed backup mnemonic, write this down", "words", words)
		}
		seed = s
	}

	_, env, err := keystore.Create(*product, *username, *password, seed)
	if err != nil {
		slog.Error("create keypair failed", "error", err)
		return exitIOOrDNSError
	}
	if err := keystore.Save(*out, *product, env); err != nil {
		slog.Error("save keypair failed", "error", err)
		return exitIOOrDNSError
	}
	slog.Info("keypair created", "product", *product, "out", *out)
	return exitOK
}

func runIssue(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	keypairPath := fs.String("keypair", "", "path to the author's .crypto-keypair")
	username := fs.String("username", "", "keypair username")
	password := fs.String("password", "", "keypair password")
	domain := fs.String("domain", "", "author DNS domain publishing the DKIM record")
	name := fs.String("name", "", "author display name")
	grantJSON := fs.String("grant", "{}", "JSON object: the license's own-service grant value")
	bindMachine := fs.Bool("machine", false, "bind the license to this host's machine id")
	noConfirm := fs.Bool("no-confirm", true, "issue a bearer license without an interactive client prompt")
	out := fs.String("out", "", "output .crypto-license path")
	var deps stringListFlag
	fs.Var(&deps, "dep", "path to a dependency .crypto-license file (repeatable)")
	if err := fs.Parse(args); err != nil {
		return exitIOOrDNSError
	}
	if *keypairPath == "" || *username == "" || *password == "" || *domain == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "issue requires -keypair -username -password -domain -out")
		return exitIOOrDNSError
	}

	product, env, err := keystore.Load(*keypairPath)
	if err != nil {
		slog.Error("loading keypair failed", "error", err)
		return exitIOOrDNSError
	}
	kp, err := keystore.Open(env, product, *username, *password)
	if err != nil {
		slog.Error("opening keypair failed", "error", err)
		return exitBadCredentials
	}

	author := licensing.Author{Name: *name, Domain: *domain, Product: product, PubKey: kp.PublicKey}

	var grantValue any
	if err := json.Unmarshal([]byte(*grantJSON), &grantValue); err != nil {
		slog.Error("parsing -grant JSON failed", "error", err)
		return exitIOOrDNSError
	}
	grants := licensing.Grant{author.ServiceOrDefault(): jsonToGrantValue(grantValue)}

	var dependencies []licensing.SignedLicense
	for _, depPath := range deps {
		data, err := os.ReadFile(depPath)
		if err != nil {
			slog.Error("reading dependency failed", "error", err, "path", depPath)
			return exitIOOrDNSError
		}
		dep, err := licensing.Decode(data)
		if err != nil {
			slog.Error("decoding dependency failed", "error", err, "path", depPath)
			return exitIOOrDNSError
		}
		dependencies = append(dependencies, dep)
	}

	var machineID string
	if *bindMachine {
		id, err := machineid.Current()
		if err != nil {
			slog.Error("machine id lookup failed", "error", err)
			return exitIOOrDNSError
		}
		machineID = id.String()
	}

	resolver := dnsresolver.New(nil, 5)
	verifier := licensing.NewVerifier(resolver)
	signed, err := licensing.Issue(ctx, verifier, kp.PrivateKey, author, grants, licensing.IssueOptions{
		Dependencies:  dependencies,
		Machine:       machineID,
		NoConfirm:     *noConfirm,
		VerifyMachine: machineID,
	})
	if err != nil {
		slog.Error("issue failed", "error", err)
		return exitVerificationFailed
	}

	data, err := licensing.Encode(signed)
	if err != nil {
		slog.Error("encoding license failed", "error", err)
		return exitIOOrDNSError
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		slog.Error("writing license failed", "error", err)
		return exitIOOrDNSError
	}
	slog.Info("license issued", "product", product, "out", *out)
	return exitOK
}

func runVerify(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	licensePath := fs.String("license", "", "path to a .crypto-license file")
	machine := fs.String("machine", "", "machine id to check the license's binding against (defaults to this host's)")
	if err := fs.Parse(args); err != nil {
		return exitIOOrDNSError
	}
	if *licensePath == "" {
		fmt.Fprintln(os.Stderr, "verify requires -license")
		return exitIOOrDNSError
	}

	data, err := os.ReadFile(*licensePath)
	if err != nil {
		slog.Error("reading license failed", "error", err)
		return exitIOOrDNSError
	}
	signed, err := licensing.Decode(data)
	if err != nil {
		slog.Error("decoding license failed", "error", err)
		return exitIOOrDNSError
	}

	machineID := *machine
	if machineID == "" {
		if id, err := machineid.Current(); err == nil {
			machineID = id.String()
		}
	}

	resolver := dnsresolver.New(nil, 5)
	verifier := licensing.NewVerifier(resolver)
	verified, err := verifier.Verify(ctx, signed, licensing.VerifyOptions{Machine: machineID})
	if err != nil {
		slog.Error("verification failed", "error", err)
		return exitVerificationFailed
	}

	grants := licensing.ResolveGrants(verified)
	slog.Info("license verified", "grants", fmt.Sprintf("%v", grants))
	return exitOK
}

func runDiscover(ctx context.Context, cfg config.Config) int {
	resolver := dnsresolver.New(nil, 5)
	verifier := licensing.NewVerifier(resolver)

	machine, err := machineid.Current()
	if err != nil {
		slog.Error("machine id lookup failed", "error", err)
		return exitIOOrDNSError
	}

	creds := discovery.CredentialsFromEnv()
	found, err := discovery.Walk(ctx, cfg.SearchPath, creds, verifier, licensing.VerifyOptions{Machine: machine.String()})
	if err != nil {
		return exitIOOrDNSError
	}
	if len(found) == 0 {
		return exitNoValidPair
	}
	for _, f := range found {
		status := "no license"
		if f.Verified != nil {
			status = "verified"
		}
		slog.Info("discovered keypair", "product", f.Product, "status", status)
	}
	return exitOK
}

// jsonToGrantValue recursively rewrites map[string]any nodes produced by
// encoding/json into licensing.Grant, so a -grant JSON object nests the
// same way a programmatically built Grant does.
func jsonToGrantValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	g := make(licensing.Grant, len(m))
	for k, val := range m {
		g[k] = jsonToGrantValue(val)
	}
	return g
}

// stringListFlag collects repeated -dep flags into a slice.
type stringListFlag []string

func (f *stringListFlag) String() string { return strings.Join(*f, ",") }

func (f *stringListFlag) Set(value string) error {
	*f = append(*f, value)
	return nil
}
