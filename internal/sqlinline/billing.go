package sqlinline

// QAddCredits tops up a metered balance. The credit_topups insert keyed by the
// provider event id makes webhook redelivery a no-op: the profile upsert only
// runs when the event was seen for the first time. Returns the new balance, or
// null when the event was already applied.
const QAddCredits = `--sql 5a2e7c13-9f60-4d8b-bb1f-4c0d8a6e2f57
with input as (
  select $1::text as event_id, $2::uuid as user_id, $3::int as credits
),
seen as (
  insert into credit_topups(event_id, user_id, credits, created_at)
  select event_id, user_id, credits, now() from input
  on conflict (event_id) do nothing
  returning user_id, credits
),
applied as (
  insert into profiles(user_id, credits, updated_at)
  select user_id, credits, now() from seen
  on conflict (user_id) do update
    set credits = profiles.credits + excluded.credits, updated_at = now()
  returning credits
)
select (select credits from applied);
`
