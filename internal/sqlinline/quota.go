package sqlinline

// QSelectQuotaState reads the caller's metered balance and the count of
// successful generations in the trailing window in one round trip. Free-tier
// usage is never stored as a counter; it is recomputed from record timestamps.
const QSelectQuotaState = `--sql 3f8f2a41-6d1e-4c55-9a0a-2a6f9d1c7b42
with input as (
  select $1::uuid as user_id, $2::int as window_days
)
select
  coalesce((select p.credits from profiles p, input i where p.user_id = i.user_id), 0),
  (select count(*) from generation_records r, input i
     where r.user_id = i.user_id
       and r.created_at >= now() - make_interval(days => i.window_days));
`

// QRecordGeneration persists the generation record and debits the metered
// balance as one statement. The unique job_id gates the debit: a replay hits
// the conflict, inserts nothing and debits nothing, so the pair is applied at
// most once per job. The credits > 0 guard makes the debit a conditional
// update rather than read-then-write.
const QRecordGeneration = `--sql 9b7d4e02-58c3-4f1a-8e6d-f0a35c29d8b1
with input as (
  select
    $1::uuid as user_id,
    $2::text as job_id,
    $3::text as style_kind,
    $4::text as prompt_text,
    $5::text as output_ref,
    nullif($6::text, '') as country,
    $7::text as tier
),
ins as (
  insert into generation_records(id, user_id, job_id, style_kind, prompt_text, output_ref, country, created_at)
  select gen_random_uuid(), user_id, job_id, style_kind, prompt_text, output_ref, country, now()
  from input
  on conflict (job_id) do nothing
  returning id
),
debit as (
  update profiles p
  set credits = p.credits - 1, updated_at = now()
  from input i
  where p.user_id = i.user_id
    and i.tier = 'metered'
    and p.credits > 0
    and exists (select 1 from ins)
  returning p.credits
)
select
  coalesce((select id from ins),
           (select r.id from generation_records r, input i where r.job_id = i.job_id)),
  (select credits from debit),
  exists (select 1 from ins);
`
