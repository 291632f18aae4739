package deepresearch_test

import (
	"context"
	"fmt"
	"log"

	deepresearch "github.com/Thesius-ai/thesius-deepresearch-cli"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/dsl"
)

// ExampleNew demonstrates a fan-out over a variable-length list whose results
// are merged back through an append field.
func ExampleNew() {
	schema := domain.MustSchema(
		domain.Replace("items", domain.TypeSequence),
		domain.Append("squares"),
		domain.Replace("count", domain.TypeInt),
	)

	b := dsl.New(schema)
	b.Add("split").
		Routes("square").
		Do(func(_ context.Context, s domain.State) (domain.Output, error) {
			var sends []domain.Send
			for _, item := range s.Sequence("items") {
				sends = append(sends, domain.Send{Node: "square", State: domain.Update{"n": item}})
			}
			return domain.FanOut(nil, sends...), nil
		})
	b.Add("square").
		Do(func(_ context.Context, s domain.State) (domain.Output, error) {
			n, err := domain.Decode[int](s, "n")
			if err != nil {
				return nil, err
			}
			return domain.Update{"squares": n * n}, nil
		}).
		Go("count")
	b.Add("count").
		Do(func(_ context.Context, s domain.State) (domain.Output, error) {
			return domain.Update{"count": len(s.Sequence("squares"))}, nil
		}).
		Terminal()

	eng, err := deepresearch.New(b.MustBuild())
	if err != nil {
		log.Fatal(err)
	}

	out, err := eng.Start(context.Background(), "example", map[string]any{"items": []int{1, 2, 3}})
	if err != nil {
		log.Fatal(err)
	}
	count, _ := out.State.Get("count")
	fmt.Println(out.Status, count)
	// Output: terminated 3
}
