package fakeredis

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSAddDeduplicates(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	n, err := client.SAdd(ctx, "k", "x").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = client.SAdd(ctx, "k", "x").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	card, err := client.SCard(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), card)

	in, err := client.SIsMember(ctx, "k", "x").Result()
	require.NoError(t, err)
	require.True(t, in)

	flags, err := client.SMIsMember(ctx, "k", "x", "ghost").Result()
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, flags)
}

func TestSRemEmptiesKey(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.SAdd(ctx, "k", "a", "b").Err())
	n, err := client.SRem(ctx, "k", "a", "b", "ghost").Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	exists, err := client.Exists(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), exists)
}

func TestSetAlgebra(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.SAdd(ctx, "a", "1", "2", "3", "4").Err())
	require.NoError(t, client.SAdd(ctx, "b", "3", "4", "5").Err())

	diff, err := client.SDiff(ctx, "a", "b").Result()
	require.NoError(t, err)
	sort.Strings(diff)
	require.Equal(t, []string{"1", "2"}, diff)

	inter, err := client.SInter(ctx, "a", "b").Result()
	require.NoError(t, err)
	sort.Strings(inter)
	require.Equal(t, []string{"3", "4"}, inter)

	union, err := client.SUnion(ctx, "a", "b").Result()
	require.NoError(t, err)
	require.Len(t, union, 5)

	n, err := client.SInterStore(ctx, "dest", "a", "b").Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	card, err := client.Do(ctx, "SINTERCARD", "2", "a", "b", "LIMIT", "1").Int64()
	require.NoError(t, err)
	require.Equal(t, int64(1), card)

	// Storing an empty result deletes the destination.
	n, err = client.SDiffStore(ctx, "dest", "a", "a").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
	exists, err := client.Exists(ctx, "dest").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), exists)
}

func TestSMove(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.SAdd(ctx, "src", "m").Err())
	ok, err := client.SMove(ctx, "src", "dst", "m").Result()
	require.NoError(t, err)
	require.True(t, ok)

	exists, err := client.Exists(ctx, "src").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), exists, "emptied source disappears")

	in, err := client.SIsMember(ctx, "dst", "m").Result()
	require.NoError(t, err)
	require.True(t, in)

	ok, err = client.SMove(ctx, "dst", "src", "ghost").Result()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSPopSRandMemberSeeded(t *testing.T) {
	srvA, clientA := startServer(t)
	srvB, clientB := startServer(t)
	ctx := context.Background()

	srvA.Seed(1234)
	srvB.Seed(1234)

	members := []string{"a", "b", "c", "d", "e"}
	require.NoError(t, clientA.SAdd(ctx, "k", members[0], members[1], members[2], members[3], members[4]).Err())
	require.NoError(t, clientB.SAdd(ctx, "k", members[0], members[1], members[2], members[3], members[4]).Err())

	// Same seed, same data: sampling is reproducible across instances.
	a, err := clientA.SRandMemberN(ctx, "k", 3).Result()
	require.NoError(t, err)
	b, err := clientB.SRandMemberN(ctx, "k", 3).Result()
	require.NoError(t, err)
	require.Equal(t, a, b)

	pa, err := clientA.SPop(ctx, "k").Result()
	require.NoError(t, err)
	pb, err := clientB.SPop(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, pa, pb)
	require.Contains(t, members, pa)

	// Popping removes, sampling does not.
	card, err := clientA.SCard(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, int64(4), card)

	// Negative count samples with repetition.
	many, err := clientA.SRandMemberN(ctx, "k", -10).Result()
	require.NoError(t, err)
	require.Len(t, many, 10)
}
