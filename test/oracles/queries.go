// Package oracles holds SQL invariants checked while the stress test runs.
// Each query returns rows only when its invariant is violated.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// Core holds invariants that survive killed connections.
func Core() []Oracle {
	return []Oracle{
		{
			Name: "O1_unique_identity_email",
			SQL: `SELECT lower(email), COUNT(*) FROM auth_identities
                  GROUP BY lower(email) HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_single_profile_per_user",
			SQL: `SELECT a.user_id FROM agent_profiles a
                  JOIN client_profiles c ON c.user_id = a.user_id`,
		},
		{
			Name: "O3_profile_defaults",
			SQL: `SELECT user_id::text FROM agent_profiles
                  WHERE subscription_tier <> 'basic' OR subscription_status <> 'trial'
                  UNION ALL
                  SELECT user_id::text FROM client_profiles
                  WHERE preferred_contact <> 'email' OR cardinality(preferred_areas) <> 0`,
		},
		{
			Name: "O4_profile_matches_role",
			SQL: `SELECT a.user_id FROM agent_profiles a
                  JOIN auth_identities i ON i.id = a.user_id
                  WHERE i.user_metadata->>'role' IS DISTINCT FROM 'agent'
                  UNION ALL
                  SELECT c.user_id FROM client_profiles c
                  JOIN auth_identities i ON i.id = c.user_id
                  WHERE i.user_metadata->>'role' IS DISTINCT FROM 'client'`,
		},
	}
}

// Consistency holds invariants that only hold when no connection is killed
// mid-request.
func Consistency() []Oracle {
	return []Oracle{
		{
			Name: "O5_profile_has_identity",
			SQL: `SELECT user_id FROM agent_profiles WHERE user_id NOT IN (SELECT id FROM auth_identities)
                  UNION ALL
                  SELECT user_id FROM client_profiles WHERE user_id NOT IN (SELECT id FROM auth_identities)`,
		},
		{
			Name: "O6_no_orphaned_identity",
			SQL: `SELECT i.id FROM auth_identities i
                  WHERE i.user_metadata->>'role' = 'agent'
                    AND NOT EXISTS (SELECT 1 FROM agent_profiles a WHERE a.user_id = i.id)
                  UNION ALL
                  SELECT i.id FROM auth_identities i
                  WHERE i.user_metadata->>'role' = 'client'
                    AND NOT EXISTS (SELECT 1 FROM client_profiles c WHERE c.user_id = i.id)`,
		},
	}
}

// Run executes the oracles and returns the first failure (name and sample
// row text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool, oracles []Oracle) (string, string, error) {
	for _, o := range oracles {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
