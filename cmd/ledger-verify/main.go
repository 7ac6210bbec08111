// ledger-verify replays the transaction log against every account's
// starting balance and reports any drift. A clean ledger satisfies, for
// every account, balance == initial_balance + credits - debits, and the
// sum of all balances equals the sum of all starting balances.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func main() {
	var (
		dsn     = flag.String("dsn", os.Getenv("DB_CONN"), "postgres DSN (defaults to DB_CONN)")
		timeout = flag.Duration("timeout", 30*time.Second, "overall query timeout")
	)
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "missing -dsn (or DB_CONN)")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(2)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT a.id::text,
		       a.initial_balance,
		       a.balance,
		       COALESCE((SELECT SUM(t.amount) FROM transactions t WHERE t.to_account_id = a.id), 0)   AS credits,
		       COALESCE((SELECT SUM(t.amount) FROM transactions t WHERE t.from_account_id = a.id), 0) AS debits
		  FROM accounts a
		 ORDER BY a.id`)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(2)
	}
	defer rows.Close()

	var (
		accounts     int
		violations   int
		totalBalance decimal.Decimal
		totalInitial decimal.Decimal
	)
	for rows.Next() {
		var id string
		var initial, balance, credits, debits decimal.Decimal
		if err := rows.Scan(&id, &initial, &balance, &credits, &debits); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(2)
		}
		accounts++
		totalBalance = totalBalance.Add(balance)
		totalInitial = totalInitial.Add(initial)

		replayed := initial.Add(credits).Sub(debits)
		if !replayed.Equal(balance) {
			violations++
			fmt.Fprintf(os.Stderr, "FAIL: account %s: stored balance %s, replayed %s (initial %s +%s -%s)\n",
				id, balance, replayed, initial, credits, debits)
		}
		if balance.IsNegative() {
			violations++
			fmt.Fprintf(os.Stderr, "FAIL: account %s: negative balance %s\n", id, balance)
		}
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "rows:", err)
		os.Exit(2)
	}

	// Transfers alone never change the total; only initial funding does.
	if !totalBalance.Equal(totalInitial) {
		violations++
		fmt.Fprintf(os.Stderr, "FAIL: conservation: total balance %s != total initial %s\n", totalBalance, totalInitial)
	}

	if violations > 0 {
		fmt.Fprintf(os.Stderr, "FAIL: %d violation(s) across %d account(s)\n", violations, accounts)
		os.Exit(1)
	}
	fmt.Printf("OK: ledger consistent (%d accounts, total=%s)\n", accounts, totalBalance)
}
