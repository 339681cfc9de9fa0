package sqlinline

const QInsertUsageEvent = `--sql e40f651c-a8b3-44c7-a911-bb8a0ed5f6ef
insert into usage_events(id, user_id, request_id, event_type, success, latency_ms, country, created_at)
values (gen_random_uuid(), nullif($1::text, '')::uuid, $2::text, $3::text, $4::boolean, $5::int, nullif($6::text, ''), now());
`
