package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/client"
)

type cmdEnv struct {
	c   *client.Client
	out io.Writer
	at  uint64
}

type command struct {
	args     string
	help     string
	min, max int
	mutates  bool
	run      func(ctx context.Context, e *cmdEnv, args []string) error
}

var (
	header  = color.New(color.FgCyan, color.Bold)
	ok      = color.New(color.FgGreen)
	dim     = color.New(color.Faint)
	warning = color.New(color.FgYellow)
)

var commands = map[string]command{
	"services":         {"", "list services", 0, 0, false, listServices},
	"service":          {"<sid>", "show a service", 1, 1, false, showService},
	"versions":         {"<sid>", "list versions", 1, 1, false, listVersions},
	"version":          {"<hash>", "find a version by hash", 1, 1, false, showVersion},
	"offers":           {"<sid>", "list offers", 1, 1, false, listOffers},
	"purchases":        {"<sid>", "list purchases", 1, 1, false, listPurchases},
	"authorized":       {"<sid> <address>", "check access", 2, 2, false, authorized},
	"admin":            {"", "show owner, pausers and pause state", 0, 0, false, showAdmin},
	"balance":          {"<address>", "token balance", 1, 1, false, balance},
	"watch":            {"[kind...]", "stream committed events", 0, -1, false, watch},
	"create-service":   {"<sid>", "create a service", 1, 1, true, createService},
	"transfer-service": {"<sid> <owner>", "transfer service ownership", 2, 2, true, transferService},
	"create-version":   {"<sid> <hash> <manifest> <protocol>", "publish a version", 4, 4, true, createVersion},
	"create-offer":     {"<sid> <price> <duration|forever>", "publish an offer", 3, 3, true, createOffer},
	"disable-offer":    {"<sid> <index>", "disable an offer", 2, 2, true, disableOffer},
	"purchase":         {"<sid> <offer>", "buy an offer", 2, 2, true, purchase},
	"pause":            {"", "pause the marketplace", 0, 0, true, pause},
	"unpause":          {"", "unpause the marketplace", 0, 0, true, unpause},
	"add-pauser":       {"<address>", "grant the pauser role", 1, 1, true, addPauser},
	"approve":          {"<spender> <amount>", "approve a token spender", 2, 2, true, approve},
	"transfer":         {"<to> <amount>", "transfer tokens", 2, 2, true, transfer},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func table(out io.Writer, cols ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		header.Fprint(tw, c)
	}
	fmt.Fprintln(tw)
	return tw
}

func when(ts uint64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}

func expiry(s client.Span) string {
	if s.Forever() {
		return "forever"
	}
	n, err := strconv.ParseUint(string(s), 10, 64)
	if err != nil {
		return string(s)
	}
	return when(n)
}

func committed(e *cmdEnv, res client.Committed, err error) error {
	if err != nil {
		return err
	}
	ok.Fprintf(e.out, "committed at %s\n", when(res.At))
	for _, ev := range res.Events {
		fmt.Fprintf(e.out, "  #%d %s %s\n", ev.Seq, ev.Kind, ev.Event)
	}
	return nil
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a non-negative integer", s)
	}
	return n, nil
}

func listServices(ctx context.Context, e *cmdEnv, _ []string) error {
	page, err := e.c.Services(ctx, 0, 1000)
	if err != nil {
		return err
	}
	tw := table(e.out, "SID", "OWNER", "CREATED", "VERSIONS", "OFFERS", "PURCHASES")
	for _, s := range page.Services {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", s.Sid, s.Owner, when(s.CreateTime), s.VersionsCount, s.OffersCount, s.PurchasesCount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if page.Total > len(page.Services) {
		dim.Fprintf(e.out, "%d of %d services shown\n", len(page.Services), page.Total)
	}
	return nil
}

func showService(ctx context.Context, e *cmdEnv, args []string) error {
	s, err := e.c.Service(ctx, args[0])
	if err != nil {
		return err
	}
	header.Fprintln(e.out, s.Sid)
	fmt.Fprintf(e.out, "owner      %s\ncreated    %s\nversions   %d\noffers     %d\npurchases  %d\n",
		s.Owner, when(s.CreateTime), s.VersionsCount, s.OffersCount, s.PurchasesCount)
	return nil
}

func listVersions(ctx context.Context, e *cmdEnv, args []string) error {
	vs, err := e.c.Versions(ctx, args[0])
	if err != nil {
		return err
	}
	tw := table(e.out, "#", "HASH", "PROTOCOL", "MANIFEST", "LOCATION", "CREATED")
	for _, v := range vs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", v.Index, v.Hash, v.ManifestProtocol, v.Manifest, location(v.Location), when(v.CreateTime))
	}
	return tw.Flush()
}

func location(l client.Location) string {
	if l.URL != "" {
		return l.URL
	}
	return l.Kind
}

func showVersion(ctx context.Context, e *cmdEnv, args []string) error {
	v, err := e.c.VersionByHash(ctx, args[0])
	if err != nil {
		return err
	}
	header.Fprintf(e.out, "%s #%d\n", v.Sid, v.Index)
	fmt.Fprintf(e.out, "hash      %s\nmanifest  %s (%s)\nlocation  %s\ncreated   %s\n",
		v.Hash, v.Manifest, v.ManifestProtocol, location(v.Location), when(v.CreateTime))
	return nil
}

func listOffers(ctx context.Context, e *cmdEnv, args []string) error {
	offers, err := e.c.Offers(ctx, args[0])
	if err != nil {
		return err
	}
	tw := table(e.out, "#", "PRICE", "DURATION", "ACTIVE", "CREATED")
	for _, o := range offers {
		active := ok.Sprint("yes")
		if !o.Active {
			active = warning.Sprint("no")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", o.Index, o.Price, o.Duration, active, when(o.CreateTime))
	}
	return tw.Flush()
}

func listPurchases(ctx context.Context, e *cmdEnv, args []string) error {
	ps, err := e.c.Purchases(ctx, args[0])
	if err != nil {
		return err
	}
	tw := table(e.out, "#", "PURCHASER", "EXPIRES", "AUTHORIZED", "FIRST PURCHASE")
	for _, p := range ps {
		auth := ok.Sprint("yes")
		if !p.Authorized {
			auth = warning.Sprint("expired")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.Index, p.Purchaser, expiry(p.Expire), auth, when(p.CreateTime))
	}
	return tw.Flush()
}

func authorized(ctx context.Context, e *cmdEnv, args []string) error {
	a, err := e.c.Authorized(ctx, args[0], args[1], e.at)
	if err != nil {
		return err
	}
	if a.Authorized {
		ok.Fprintf(e.out, "%s may use %s at %s\n", a.Address, a.Sid, when(a.At))
		return nil
	}
	warning.Fprintf(e.out, "%s may not use %s at %s\n", a.Address, a.Sid, when(a.At))
	return nil
}

func showAdmin(ctx context.Context, e *cmdEnv, _ []string) error {
	a, err := e.c.Admin(ctx)
	if err != nil {
		return err
	}
	state := ok.Sprint("running")
	if a.Paused {
		state = warning.Sprint("paused")
	}
	fmt.Fprintf(e.out, "owner     %s\nstate     %s\nservices  %d\nnow       %s\npausers\n", a.Owner, state, a.Services, when(a.Now))
	for _, p := range a.Pausers {
		fmt.Fprintf(e.out, "  %s\n", p)
	}
	return nil
}

func balance(ctx context.Context, e *cmdEnv, args []string) error {
	b, err := e.c.Balance(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, b)
	return nil
}

func watch(ctx context.Context, e *cmdEnv, kinds []string) error {
	dim.Fprintln(e.out, "watching, interrupt to stop")
	return e.c.Watch(ctx, kinds, func(env client.Envelope) error {
		header.Fprintf(e.out, "#%d %s", env.Seq, env.Kind)
		fmt.Fprintf(e.out, " %s %s\n", when(env.Time), env.Event)
		return nil
	})
}

func createService(ctx context.Context, e *cmdEnv, args []string) error {
	res, err := e.c.CreateService(ctx, args[0])
	return committed(e, res, err)
}

func transferService(ctx context.Context, e *cmdEnv, args []string) error {
	res, err := e.c.TransferService(ctx, args[0], args[1])
	return committed(e, res, err)
}

func createVersion(ctx context.Context, e *cmdEnv, args []string) error {
	res, err := e.c.CreateVersion(ctx, args[0], args[1], args[2], args[3])
	return committed(e, res, err)
}

func createOffer(ctx context.Context, e *cmdEnv, args []string) error {
	res, err := e.c.CreateOffer(ctx, args[0], args[1], args[2])
	return committed(e, res, err)
}

func disableOffer(ctx context.Context, e *cmdEnv, args []string) error {
	i, err := atoi(args[1])
	if err != nil {
		return err
	}
	res, err := e.c.DisableOffer(ctx, args[0], i)
	return committed(e, res, err)
}

func purchase(ctx context.Context, e *cmdEnv, args []string) error {
	i, err := atoi(args[1])
	if err != nil {
		return err
	}
	res, err := e.c.Purchase(ctx, args[0], i)
	return committed(e, res, err)
}

func pause(ctx context.Context, e *cmdEnv, _ []string) error {
	res, err := e.c.Pause(ctx)
	return committed(e, res, err)
}

func unpause(ctx context.Context, e *cmdEnv, _ []string) error {
	res, err := e.c.Unpause(ctx)
	return committed(e, res, err)
}

func addPauser(ctx context.Context, e *cmdEnv, args []string) error {
	res, err := e.c.AddPauser(ctx, args[0])
	return committed(e, res, err)
}

func approve(ctx context.Context, e *cmdEnv, args []string) error {
	if err := e.c.Approve(ctx, args[0], args[1]); err != nil {
		return err
	}
	ok.Fprintf(e.out, "approved %s to spend %s\n", args[0], args[1])
	return nil
}

func transfer(ctx context.Context, e *cmdEnv, args []string) error {
	if err := e.c.Transfer(ctx, args[0], args[1]); err != nil {
		return err
	}
	ok.Fprintf(e.out, "transferred %s to %s\n", args[1], args[0])
	return nil
}
