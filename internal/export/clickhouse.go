package export

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"

	"github.com/rtm0/tecgrid/internal/grid"
	"github.com/rtm0/tecgrid/internal/regrid"
)

// ClickHouseBatch is the number of rows sent per INSERT block.
const ClickHouseBatch = 100_000

// Querier executes ClickHouse queries; *ch.Client satisfies it.
type Querier interface {
	Do(ctx context.Context, q ch.Query) error
}

// ClickHouseSink inserts the valid cells of a result into a table with the
// columns (time DateTime, dataset String, x Float64, y Float64, value Float64).
// y is zero for results with a single spatial axis.
type ClickHouseSink struct {
	Conn     Querier
	TableFQN string
}

// DialClickHouse connects to addr and returns a sink for db.table along with
// the client to close.
func DialClickHouse(ctx context.Context, addr, db, table string) (*ClickHouseSink, *ch.Client, error) {
	conn, err := ch.Dial(ctx, ch.Options{
		Address:     addr,
		Database:    db,
		Compression: ch.CompressionLZ4,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to clickhouse %s: %w", addr, err)
	}
	return &ClickHouseSink{Conn: conn, TableFQN: fmt.Sprintf("%s.%s", db, table)}, conn, nil
}

type cellBlock struct {
	time    proto.ColDateTime
	dataset proto.ColStr
	x       proto.ColFloat64
	y       proto.ColFloat64
	value   proto.ColFloat64
}

func (b *cellBlock) reset() {
	b.time.Reset()
	b.dataset.Reset()
	b.x.Reset()
	b.y.Reset()
	b.value.Reset()
}

func (b *cellBlock) input() proto.Input {
	return proto.Input{
		{Name: "time", Data: &b.time},
		{Name: "dataset", Data: &b.dataset},
		{Name: "x", Data: &b.x},
		{Name: "y", Data: &b.y},
		{Name: "value", Data: &b.value},
	}
}

// Insert sends every non-missing cell and returns the number of rows sent.
func (s *ClickHouseSink) Insert(ctx context.Context, res *regrid.Result) (int, error) {
	query := fmt.Sprintf("INSERT INTO %s (time, dataset, x, y, value) VALUES", s.TableFQN)
	var b cellBlock
	sent := 0
	flush := func() error {
		if b.value.Rows() == 0 {
			return nil
		}
		if err := s.Conn.Do(ctx, ch.Query{Body: query, Input: b.input()}); err != nil {
			return fmt.Errorf("inserting into %s: %w", s.TableFQN, err)
		}
		sent += b.value.Rows()
		b.reset()
		return nil
	}

	x := res.Axes[0].Values
	var y []float64
	if len(res.Axes) > 1 {
		y = res.Axes[1].Values
	}
	for i, u := range res.Grid.Unix {
		ts := time.Unix(u, 0).UTC()
		for k, v := range res.Values.Row(i) {
			if grid.IsMissing(v) {
				continue
			}
			b.time.Append(ts)
			b.dataset.Append(string(res.Dataset))
			if y == nil {
				b.x.Append(x[k])
				b.y.Append(0)
			} else {
				b.x.Append(x[k/len(y)])
				b.y.Append(y[k%len(y)])
			}
			b.value.Append(v)
			if b.value.Rows() >= ClickHouseBatch {
				if err := flush(); err != nil {
					return sent, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return sent, err
	}
	return sent, nil
}
