package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"dovakin0007.com/notebook-grpc/internal/client"
	"dovakin0007.com/notebook-grpc/internal/config"
	"dovakin0007.com/notebook-grpc/internal/export"
	"dovakin0007.com/notebook-grpc/internal/models"
	"dovakin0007.com/notebook-grpc/internal/session"
	"github.com/docopt/docopt-go"
	"github.com/hashicorp/go-hclog"
)

const version = "0.1.0"

const usage = `Notebook control.

Every command connects as --user first. A new user is created when --email is
given and the name is not taken yet.

Usage:
    nbctl [options] users
    nbctl [options] notebooks
    nbctl [options] create <title>
    nbctl [options] remove <notebook>
    nbctl [options] show <notebook>
    nbctl [options] add <notebook> <parent> <index> <type> [<title>]
    nbctl [options] drop <notebook> <node>
    nbctl [options] move <notebook> <node> <parent> <index>
    nbctl [options] edit <notebook> <node> <field> <value>
    nbctl [options] tag <notebook> <node> <tags>
    nbctl [options] untag <notebook> <node> <tag>
    nbctl [options] exec <notebook> <node>
    nbctl [options] share <notebook> <username> (--writer | --reader)
    nbctl [options] unshare <notebook> <username> (--writer | --reader)
    nbctl [options] export <notebook> [--out=<file>]
    nbctl [options] import <file>
    nbctl [options] watch <notebook>
    nbctl -h | --help
    nbctl --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --env=<file>       Settings file [default: .env].
    --addr=<addr>      Server address, NOTEBOOK_ADDR when empty.
    --user=<name>      Username to connect as.
    --email=<email>    Email, needed to create the user.
    --out=<file>       Write the export here instead of stdout.
    --writer           Writer role.
    --reader           Reader role.
    -v --verbose       Debug logging.`

type cli struct {
	opts   docopt.Opts
	out    io.Writer
	logger hclog.Logger
	sess   *session.Session
}

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, opts)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "nbctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts docopt.Opts) error {
	envFile, _ := opts.String("--env")
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if verbose, _ := opts.Bool("--verbose"); verbose {
		cfg.LogLevel = "debug"
	}
	logger := cfg.Logger("nbctl")

	username, _ := opts.String("--user")
	if username == "" {
		return fmt.Errorf("--user is required")
	}
	email, _ := opts.String("--email")
	addr, _ := opts.String("--addr")
	if addr == "" {
		addr = cfg.ServerAddr
	}

	conn, err := client.Dial(addr, logger.Named("client"))
	if err != nil {
		return err
	}
	defer conn.Close()

	sess, err := session.New(conn,
		session.WithLogger(logger.Named("session")),
		session.WithRequestTimeout(cfg.RequestTimeout),
		session.WithUserCacheSize(cfg.UserCacheSize),
	)
	if err != nil {
		return err
	}
	if _, err := sess.Connect(ctx, username, email); err != nil {
		return err
	}
	defer sess.Disconnect()

	c := &cli{opts: opts, out: os.Stdout, logger: logger, sess: sess}
	return c.dispatch(ctx)
}

func (c *cli) dispatch(ctx context.Context) error {
	commands := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"users", c.users},
		{"notebooks", c.notebooks},
		{"create", c.create},
		{"remove", c.remove},
		{"show", c.show},
		{"add", c.add},
		{"drop", c.drop},
		{"move", c.move},
		{"edit", c.edit},
		{"tag", c.tag},
		{"untag", c.untag},
		{"exec", c.exec},
		{"share", c.share},
		{"unshare", c.unshare},
		{"export", c.export},
		{"import", c.importXML},
		{"watch", c.watch},
	}
	for _, cmd := range commands {
		if ok, _ := c.opts.Bool(cmd.name); ok {
			return cmd.fn(ctx)
		}
	}
	return fmt.Errorf("no command")
}

func (c *cli) arg(name string) string {
	v, _ := c.opts.String(name)
	return v
}

func (c *cli) index(name string) (int, error) {
	i, err := strconv.Atoi(c.arg(name))
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", name, err)
	}
	return i, nil
}

func (c *cli) role() models.Role {
	if w, _ := c.opts.Bool("--writer"); w {
		return models.RoleWriter
	}
	return models.RoleReader
}

// open makes <notebook> the active notebook of the session.
func (c *cli) open(ctx context.Context) (*models.Notebook, error) {
	return c.sess.Open(ctx, c.arg("<notebook>"))
}

func (c *cli) users(ctx context.Context) error {
	users, err := c.sess.Users(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Fprintf(c.out, "%s\t%s\t%s\n", u.ID, u.Username, u.Email)
	}
	return nil
}

func (c *cli) notebooks(ctx context.Context) error {
	nbs, err := c.sess.Notebooks(ctx)
	if err != nil {
		return err
	}
	me := c.sess.User().ID
	for _, nb := range nbs {
		role := "reader"
		switch {
		case nb.OwnerID == me:
			role = "owner"
		case slices.Contains(nb.WriterIDs, me):
			role = "writer"
		}
		fmt.Fprintf(c.out, "%s\t%s\t%s\t%s\n", nb.ID, role, nb.DateModified.Format("2006-01-02 15:04"), nb.Title)
	}
	return nil
}

func (c *cli) create(ctx context.Context) error {
	nb, err := c.sess.CreateNotebook(ctx, c.arg("<title>"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, nb.ID)
	return nil
}

func (c *cli) remove(ctx context.Context) error {
	return c.sess.DropNotebook(ctx, c.arg("<notebook>"))
}

func (c *cli) show(ctx context.Context) error {
	nb, err := c.open(ctx)
	if err != nil {
		return err
	}
	c.print(nb)
	return nil
}

func (c *cli) print(nb *models.Notebook) {
	fmt.Fprintf(c.out, "%s (%s, %s)\n", nb.Title, nb.ID, c.sess.Permission())
	printNode(c.out, nb.Root, 0, c.sess.IsPending)
}

func printNode(w io.Writer, n *models.Node, depth int, pending func(string) bool) {
	indent := strings.Repeat("  ", depth)
	var tags string
	if len(n.Tags) > 0 {
		tags = " [" + strings.Join(n.Tags, ", ") + "]"
	}
	var mark string
	if pending(n.ID) {
		mark = " (running)"
	}
	switch n.Type {
	case models.TypeSection:
		fmt.Fprintf(w, "%s# %s  %s%s\n", indent, n.Section.Title, n.ID, tags)
		for _, c := range n.Section.Children {
			printNode(w, c, depth+1, pending)
		}
	case models.TypeInputCell:
		fmt.Fprintf(w, "%sIn  %s%s%s\n", indent, n.ID, tags, mark)
		printBlock(w, indent+"  > ", n.InputCell.Input)
		if n.InputCell.Output != "" {
			fmt.Fprintf(w, "%sOut\n", indent)
			printBlock(w, indent+"  ", n.InputCell.Output)
		}
	case models.TypeTextCell:
		fmt.Fprintf(w, "%sText %s (%s)%s\n", indent, n.ID, n.TextCell.Format, tags)
		printBlock(w, indent+"  ", n.TextCell.TextData)
	}
	if n.Comment != "" {
		fmt.Fprintf(w, "%s  // %s\n", indent, n.Comment)
	}
}

func printBlock(w io.Writer, prefix, text string) {
	if text == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(w, "%s%s\n", prefix, line)
	}
}

func (c *cli) add(ctx context.Context) error {
	if _, err := c.open(ctx); err != nil {
		return err
	}
	i, err := c.index("<index>")
	if err != nil {
		return err
	}
	nb, err := c.sess.AddNode(ctx, c.arg("<parent>"), i, models.NodeType(c.arg("<type>")), c.arg("<title>"))
	if err != nil {
		return err
	}
	c.print(nb)
	return nil
}

func (c *cli) drop(ctx context.Context) error {
	if _, err := c.open(ctx); err != nil {
		return err
	}
	nb, err := c.sess.DropNode(ctx, c.arg("<node>"))
	if err != nil {
		return err
	}
	c.print(nb)
	return nil
}

func (c *cli) move(ctx context.Context) error {
	if _, err := c.open(ctx); err != nil {
		return err
	}
	i, err := c.index("<index>")
	if err != nil {
		return err
	}
	nb, err := c.sess.MoveNode(ctx, c.arg("<node>"), c.arg("<parent>"), i)
	if err != nil {
		return err
	}
	c.print(nb)
	return nil
}

func (c *cli) edit(ctx context.Context) error {
	if _, err := c.open(ctx); err != nil {
		return err
	}
	n, err := c.sess.EditField(ctx, c.arg("<node>"), c.arg("<field>"), c.arg("<value>"))
	if err != nil {
		return err
	}
	printNode(c.out, n, 0, c.sess.IsPending)
	return nil
}

func (c *cli) tag(ctx context.Context) error {
	if _, err := c.open(ctx); err != nil {
		return err
	}
	n, err := c.sess.AddTags(ctx, c.arg("<node>"), c.arg("<tags>"))
	if err != nil {
		return err
	}
	printNode(c.out, n, 0, c.sess.IsPending)
	return nil
}

func (c *cli) untag(ctx context.Context) error {
	if _, err := c.open(ctx); err != nil {
		return err
	}
	n, err := c.sess.DropTag(ctx, c.arg("<node>"), c.arg("<tag>"))
	if err != nil {
		return err
	}
	printNode(c.out, n, 0, c.sess.IsPending)
	return nil
}

func (c *cli) exec(ctx context.Context) error {
	if _, err := c.open(ctx); err != nil {
		return err
	}
	n, err := c.sess.Execute(ctx, c.arg("<node>"))
	if err != nil {
		return err
	}
	printNode(c.out, n, 0, c.sess.IsPending)
	return nil
}

func (c *cli) share(ctx context.Context) error {
	nb, err := c.sess.AddCollaborator(ctx, c.arg("<notebook>"), c.arg("<username>"), c.role())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "writers: %s\nreaders: %s\n", strings.Join(nb.WriterIDs, ", "), strings.Join(nb.ReaderIDs, ", "))
	return nil
}

func (c *cli) unshare(ctx context.Context) error {
	nb, err := c.sess.DropCollaborator(ctx, c.arg("<notebook>"), c.arg("<username>"), c.role())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "writers: %s\nreaders: %s\n", strings.Join(nb.WriterIDs, ", "), strings.Join(nb.ReaderIDs, ", "))
	return nil
}

func (c *cli) export(ctx context.Context) error {
	nb, err := c.open(ctx)
	if err != nil {
		return err
	}
	path := c.arg("--out")
	if path == "" {
		return export.WriteXML(c.out, nb)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteXML(f, nb); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *cli) importXML(ctx context.Context) error {
	f, err := os.Open(c.arg("<file>"))
	if err != nil {
		return err
	}
	defer f.Close()
	src, err := export.ReadXML(f)
	if err != nil {
		return err
	}
	nb, err := c.sess.Import(ctx, src)
	if err != nil {
		return err
	}
	c.print(nb)
	return nil
}

func (c *cli) watch(ctx context.Context) error {
	nb, err := c.open(ctx)
	if err != nil {
		return err
	}
	c.print(nb)
	err = c.sess.Watch(ctx, func(ev models.ChangeEvent) {
		fmt.Fprintf(c.out, "\n%s %s by %s\n", ev.At.Local().Format("15:04:05"), ev.Kind, ev.UserID)
		if cur := c.sess.Notebook(); cur != nil {
			c.print(cur)
		}
	})
	if err != nil {
		return err
	}
	c.logger.Debug("watching, interrupt to stop", "notebook", nb.ID)
	<-ctx.Done()
	return nil
}
