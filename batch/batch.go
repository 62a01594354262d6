// Package batch reads new order requests from batch files.
//
// A batch file starts with the number of requests N followed by N records of six
// whitespace separated fields:
//
//	kind side clientID instrument quantity price
//
// kind is LIMIT or MARKET and side is SELL or BUY, both case-insensitive. Unknown kinds and
// sides are passed through so that the server rejects them.
package batch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/0x5487/order-process-system/protocol"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingCount = errors.New("batch: missing request count")
	ErrTruncated    = errors.New("batch: fewer records than announced")
)

const fieldsPerRecord = 6

// Parse reads a batch from r. now stamps every request; nil means time.Now.
func Parse(r io.Reader, now func() time.Time) ([]*protocol.NewOrderRequest, error) {
	if now == nil {
		now = time.Now
	}

	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, ErrMissingCount
	}
	count, err := strconv.Atoi(scanner.Text())
	if err != nil || count < 0 {
		return nil, fmt.Errorf("batch: invalid request count %q", scanner.Text())
	}

	requests := make([]*protocol.NewOrderRequest, 0, count)
	fields := make([]string, 0, fieldsPerRecord)
	for i := 0; i < count; i++ {
		fields = fields[:0]
		for len(fields) < fieldsPerRecord && scanner.Scan() {
			fields = append(fields, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		if len(fields) < fieldsPerRecord {
			return nil, fmt.Errorf("%w: record %d of %d", ErrTruncated, i+1, count)
		}

		req, err := parseRecord(fields, now())
		if err != nil {
			return nil, fmt.Errorf("batch: record %d: %w", i+1, err)
		}
		requests = append(requests, req)
	}

	return requests, nil
}

// ParseFile reads the batch file at path.
func ParseFile(path string) ([]*protocol.NewOrderRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f, nil)
}

func parseRecord(fields []string, now time.Time) (*protocol.NewOrderRequest, error) {
	clientID, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid client id %q: %w", fields[2], err)
	}

	quantity, err := strconv.ParseUint(fields[4], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", fields[4], err)
	}

	price, err := decimal.NewFromString(fields[5])
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", fields[5], err)
	}

	return &protocol.NewOrderRequest{
		ClientID:   clientID,
		Instrument: fields[3],
		Side:       protocol.ParseSide(fields[1]),
		OrderType:  protocol.ParseOrderType(fields[0]),
		Quantity:   uint32(quantity),
		Price:      price.InexactFloat64(),
		Time:       now.UTC().Format(time.RFC3339Nano),
	}, nil
}
