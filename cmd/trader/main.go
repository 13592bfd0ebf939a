// Command trader is a client-side companion to the gateway: it derives proxy
// wallets, prices and signs buy orders with a local key, and submits them
// through a running gateway instance.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"polytrade/internal/book"
	"polytrade/internal/clob"
	"polytrade/internal/config"
	"polytrade/internal/orders"
	"polytrade/internal/proxywallet"
	"polytrade/internal/signer"
)

func usage(w io.Writer) {
	fmt.Fprint(w, `trader <command> [flags]

Commands:
  derive   print the proxy wallet address for an owner
  book     fetch and print an order book snapshot
  buy      price, sign, and submit a buy order through the gateway
  auth     initialize a gateway session from the local key

Environment:
  TRADER_KEY       hex private key for signing
  TRADER_GATEWAY   gateway base URL (default http://localhost:8080)
  PT_CONFIG        config file (default config/config.yaml)
`)
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "derive":
		err = deriveCmd(os.Args[2:])
	case "book":
		err = bookCmd(os.Args[2:])
	case "buy":
		err = buyCmd(os.Args[2:])
	case "auth":
		err = authCmd(os.Args[2:])
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		usage(os.Stderr)
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfgPath := os.Getenv("PT_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := os.Getenv("PT_ENV_ONLY") == "1" || strings.EqualFold(os.Getenv("PT_ENV_ONLY"), "true")
	return config.Load(cfgPath, envOnly)
}

func gatewayURL() string {
	if v := os.Getenv("TRADER_GATEWAY"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://localhost:8080"
}

func localSigner() (*signer.Local, error) {
	key := os.Getenv("TRADER_KEY")
	if key == "" {
		return nil, fmt.Errorf("TRADER_KEY not set")
	}
	return signer.NewLocal(key)
}

func deriveCmd(args []string) error {
	fs := flag.NewFlagSet("derive", flag.ExitOnError)
	owner := fs.String("owner", "", "owner address (defaults to TRADER_KEY's address)")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolver := &proxywallet.Resolver{
		Factory:      common.HexToAddress(cfg.Chain.ProxyFactory),
		InitCodeHash: common.HexToHash(cfg.Chain.ProxyInitCodeHash),
	}

	addr := *owner
	if addr == "" {
		s, err := localSigner()
		if err != nil {
			return err
		}
		addr = s.Address().Hex()
	}
	fmt.Println(resolver.Derive(common.HexToAddress(addr)).Hex())
	return nil
}

func bookCmd(args []string) error {
	fs := flag.NewFlagSet("book", flag.ExitOnError)
	tokenID := fs.String("token", "", "outcome token id")
	fs.Parse(args)
	if *tokenID == "" {
		return fmt.Errorf("-token is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := clob.NewClient(&http.Client{Timeout: cfg.Exchange.Timeout}, cfg.Exchange.BaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	raw, err := client.GetBook(ctx, *tokenID)
	if err != nil {
		return err
	}
	return printJSON(book.BuildSnapshot(*tokenID, raw))
}

func buyCmd(args []string) error {
	fs := flag.NewFlagSet("buy", flag.ExitOnError)
	tokenID := fs.String("token", "", "outcome token id")
	spend := fs.String("spend", "", "collateral to spend (market order)")
	size := fs.String("size", "", "share count (limit order)")
	limitCents := fs.Int64("limit", 0, "limit price in cents (1-99); omit for market")
	slippage := fs.Int64("slippage", 50, "slippage tolerance in bps (market order)")
	funder := fs.String("funder", "", "funding address when a proxy wallet pays")
	orderType := fs.String("type", "FOK", "order type: FOK, GTC, or GTD")
	expiration := fs.Int64("expires-in", 0, "GTD lifetime in seconds")
	dryRun := fs.Bool("dry-run", false, "print the signed order instead of submitting")
	fs.Parse(args)
	if *tokenID == "" {
		return fmt.Errorf("-token is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := localSigner()
	if err != nil {
		return err
	}
	client := clob.NewClient(&http.Client{Timeout: cfg.Exchange.Timeout}, cfg.Exchange.BaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	rawBook, err := client.GetBook(ctx, *tokenID)
	if err != nil {
		return fmt.Errorf("book fetch failed: %w", err)
	}

	intent := orders.Intent{TokenID: *tokenID, SlippageBps: *slippage}
	if *limitCents > 0 {
		intent.Mode = orders.ModeLimit
		intent.LimitPriceCents = *limitCents
		if *size == "" {
			return fmt.Errorf("-size is required for limit orders")
		}
		intent.Size, err = decimal.NewFromString(*size)
		if err != nil {
			return fmt.Errorf("bad -size: %w", err)
		}
	} else {
		intent.Mode = orders.ModeMarket
		if *spend == "" {
			return fmt.Errorf("-spend is required for market orders")
		}
		intent.SpendAmount, err = decimal.NewFromString(*spend)
		if err != nil {
			return fmt.Errorf("bad -spend: %w", err)
		}
	}

	built, err := orders.Build(intent, rawBook)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "priced: %s shares at %s (%s total)\n",
		built.Size, built.Price, built.Notional.Round(6))

	params := orders.SignParams{
		NegRisk:       rawBook.NegRisk,
		SignatureType: orders.SignatureTypeEOA,
		Expiration:    "0",
	}
	if *funder != "" {
		params.Funder = common.HexToAddress(*funder)
		params.SignatureType = orders.SignatureTypeProxy
	}
	if strings.EqualFold(*orderType, orders.OrderTypeGTD) {
		if *expiration <= 0 {
			return fmt.Errorf("-expires-in is required for GTD orders")
		}
		params.Expiration = strconv.FormatInt(time.Now().Add(time.Duration(*expiration)*time.Second).Unix(), 10)
	}

	exchanges := orders.Exchanges{
		ChainID: big.NewInt(cfg.Chain.ChainID),
		CTF:     common.HexToAddress(cfg.Chain.CTFExchange),
		NegRisk: common.HexToAddress(cfg.Chain.NegRiskExchange),
	}
	signed, err := orders.Sign(ctx, built, s, exchanges, params)
	if errors.Is(err, signer.ErrRejected) {
		fmt.Fprintln(os.Stderr, "cancelled: signature request declined")
		return nil
	}
	if err != nil {
		return err
	}

	if *dryRun {
		return printJSON(signed)
	}

	envelope := map[string]any{
		"order":     signed,
		"orderType": strings.ToUpper(*orderType),
	}
	if *funder != "" {
		envelope["funderAddress"] = *funder
	}
	return postGateway("/api/v1/order", envelope)
}

func authCmd(args []string) error {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	fs.Parse(args)

	s, err := localSigner()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ts := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	nonce := "0"
	msg := fmt.Sprintf("This message attests that I control the given wallet\nAddress: %s\nTimestamp: %s\nNonce: %s",
		strings.ToLower(s.Address().Hex()), ts, nonce)
	sig, err := s.SignPersonal(ctx, []byte(msg))
	if errors.Is(err, signer.ErrRejected) {
		fmt.Fprintln(os.Stderr, "cancelled: signature request declined")
		return nil
	}
	if err != nil {
		return err
	}

	return postGateway("/api/v1/auth/init", map[string]any{
		"POLY_ADDRESS":   s.Address().Hex(),
		"POLY_SIGNATURE": "0x" + common.Bytes2Hex(sig),
		"POLY_TIMESTAMP": ts,
		"POLY_NONCE":     nonce,
	})
}

// postGateway sends a JSON body to the gateway, carrying cookies through a jar
// file next to the binary so the session survives between invocations.
func postGateway(path string, body any) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 60 * time.Second, Jar: jar}
	loadCookies(jar)

	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := client.Post(gatewayURL()+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	saveCookies(jar)

	var pretty bytes.Buffer
	if json.Indent(&pretty, respBody, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(respBody))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return nil
}

const cookieFile = ".trader_cookies.json"

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func loadCookies(jar *cookiejar.Jar) {
	raw, err := os.ReadFile(cookieFile)
	if err != nil {
		return
	}
	var cookies []storedCookie
	if json.Unmarshal(raw, &cookies) != nil {
		return
	}
	u, err := gatewayParsed()
	if err != nil {
		return
	}
	list := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		list = append(list, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	jar.SetCookies(u, list)
}

func saveCookies(jar *cookiejar.Jar) {
	u, err := gatewayParsed()
	if err != nil {
		return
	}
	var cookies []storedCookie
	for _, c := range jar.Cookies(u) {
		cookies = append(cookies, storedCookie{Name: c.Name, Value: c.Value})
	}
	if len(cookies) == 0 {
		return
	}
	raw, err := json.Marshal(cookies)
	if err != nil {
		return
	}
	_ = os.WriteFile(cookieFile, raw, 0o600)
}

func gatewayParsed() (*url.URL, error) {
	return url.Parse(gatewayURL())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
