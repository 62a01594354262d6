// Command opsctl talks to an opsd server.
//
//	opsctl [flags] new <file>     submit the orders of a request file
//	opsctl [flags] cancel <id>    cancel a resting order
//	opsctl [flags] query          list every resident order
//
// Without a command, opsctl reads commands from stdin, one per line. Submissions then run
// in the background so later commands are not held up.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/0x5487/order-process-system/api/grpcclient"
	"github.com/0x5487/order-process-system/batch"
	"github.com/0x5487/order-process-system/protocol"
)

const usage = "usage: <new|n> <file> | <cancel|c> <order id> | <query|q>"

var errUsage = errors.New(usage)

type cli struct {
	client  *grpcclient.Client
	timeout time.Duration

	outMu sync.Mutex
	out   io.Writer
}

func main() {
	addr := flag.String("addr", "localhost:50010", "opsd gRPC address")
	timeout := flag.Duration("timeout", 10*time.Second, "timeout of cancel and query calls")
	flag.Parse()

	client, err := grpcclient.Dial(*addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "opsctl:", err)
		os.Exit(1)
	}
	defer client.Close()

	c := &cli{client: client, timeout: *timeout, out: os.Stdout}

	if flag.NArg() > 0 {
		if err := c.exec(context.Background(), flag.Args()); err != nil {
			fmt.Fprintln(os.Stderr, "opsctl:", err)
			os.Exit(1)
		}
		return
	}

	c.interactive(os.Stdin)
}

func (c *cli) interactive(in io.Reader) {
	c.println(usage)

	var wg sync.WaitGroup
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			break
		}

		if isNew(args[0]) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := c.exec(context.Background(), args); err != nil {
					c.println("error:", err)
				}
			}()
			continue
		}
		if err := c.exec(context.Background(), args); err != nil {
			c.println("error:", err)
		}
	}
	wg.Wait()
}

func isNew(verb string) bool {
	switch verb {
	case "new", "New", "n", "N":
		return true
	}
	return false
}

func (c *cli) exec(ctx context.Context, args []string) error {
	switch args[0] {
	case "new", "New", "n", "N":
		if len(args) != 2 {
			return errUsage
		}
		return c.submit(ctx, args[1])

	case "cancel", "Cancel", "c", "C":
		if len(args) != 2 {
			return errUsage
		}
		orderID, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid order id %q: %w", args[1], err)
		}
		return c.cancel(ctx, orderID)

	case "query", "Query", "q", "Q":
		return c.query(ctx)
	}
	return errUsage
}

func (c *cli) submit(ctx context.Context, path string) error {
	requests, err := batch.ParseFile(path)
	if err != nil {
		return err
	}
	return c.client.SubmitOrders(ctx, requests, c.printReport)
}

func (c *cli) cancel(ctx context.Context, orderID uint64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	report, err := c.client.CancelOrder(ctx, &protocol.CancelOrderRequest{OrderID: orderID})
	if err != nil {
		return err
	}
	c.printReport(report)
	return nil
}

func (c *cli) query(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	orders, err := c.client.QueryOrders(ctx, &protocol.QueryOrdersRequest{})
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		c.println("no orders")
		return nil
	}
	for _, o := range orders {
		c.println(fmt.Sprintf("order %d client %d %s %s %s qty %d price %g at %s",
			o.OrderID, o.ClientID, o.Instrument, o.Side, o.OrderType, o.Quantity, o.Price, o.Time))
	}
	return nil
}

func (c *cli) printReport(r *protocol.ExecutionReport) {
	line := fmt.Sprintf("%-13s order %d client %d %s qty %d price %g",
		r.Status, r.OrderID, r.ClientID, r.Instrument, r.OrderQty, r.OrderPrice)
	if r.Status == protocol.StatusFill {
		line += fmt.Sprintf(" fill %d@%g leave %d", r.FillQty, r.FillPrice, r.LeaveQty)
	}
	if r.ErrorMessage != "" {
		line += " (" + r.ErrorMessage + ")"
	}
	c.println(line, "at", r.Time)
}

func (c *cli) println(a ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, a...)
}
