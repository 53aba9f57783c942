// Package reconcile compares two staged canonical tables by key.
//
// A comparison produces three relations in the engine session: rows whose key
// exists only on the left, rows whose key exists only on the right, and a tall
// value diff with one row per key and differing column. Values compare with
// IS DISTINCT FROM semantics, so two nulls are equal and a null against a value
// is a difference. Fractional columns may be rounded before comparison.
//
// Key columns must resolve on both sides; a missing key fails the comparison
// with a KeyColumnError naming the side and column. Compare columns default to
// the non-key columns both tables share.
//
// CompareChunked computes the same presence counts in bounded key windows and
// leaves the value diff empty.
//
// Usage:
//
//	cmp := reconcile.NewComparator(sess, log)
//	res, err := cmp.Compare(ctx, left, right, comparison)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Summary().MatchRate)
package reconcile
