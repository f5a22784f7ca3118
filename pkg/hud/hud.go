// Package hud fetches heads-up-display data from the KV store: weather,
// calendar, todos, and the running "today so far" / "to self" notes. Six
// keys are fetched concurrently and the "to self" timestamp key after
// them; a per-key miss or error yields a nil field
// rather than failing the whole fetch, and a connection-level failure
// yields an all-nil HUD.
package hud

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/pondside-labs/loom/pkg/types"
)

const (
	keyWeather      = "hud:weather"
	keyCalendar     = "hud:calendar"
	keyTodos        = "hud:todos"
	keyTodaySoFar   = "systemprompt:past:today"
	keyTodaySoFarAt = "systemprompt:past:today:time"
	keyToSelf       = "systemprompt:past:to_self"
	keyToSelfAt     = "systemprompt:past:to_self:time"
)

// Fetcher reads HUD data from Redis.
type Fetcher struct {
	Client *redis.Client
}

// Fetch performs a concurrent fan-out GET across six HUD keys, then a
// single GET of the "to self" timestamp key. Individual
// key failures are swallowed into a nil field; a failure reaching every
// key (e.g. the client cannot dial at all) still returns a non-nil HUD
// with every field nil, never an error.
func (f *Fetcher) Fetch(ctx context.Context) types.HUD {
	var out types.HUD
	var wg sync.WaitGroup

	get := func(key string, dst **string) {
		defer wg.Done()
		val, err := f.Client.Get(ctx, key).Result()
		if err != nil {
			return
		}
		*dst = &val
	}

	wg.Add(6)
	go get(keyWeather, &out.Weather)
	go get(keyCalendar, &out.Calendar)
	go get(keyTodos, &out.Todos)
	go get(keyTodaySoFar, &out.TodaySoFar)
	go get(keyTodaySoFarAt, &out.TodaySoFarAt)
	go get(keyToSelf, &out.ToSelf)
	wg.Wait()

	// to_self:time is fetched after the core six so a slow/missing key
	// never blocks them; it decorates ToSelf and is optional on its own.
	if val, err := f.Client.Get(ctx, keyToSelfAt).Result(); err == nil {
		out.ToSelfAt = &val
	}

	return out
}
