package sqlinline

const QSelectGenerations = `--sql c1d9a8e7-2b44-4f0e-a3c5-7e812d6f94a0
select id, job_id, style_kind, prompt_text, output_ref, coalesce(country, ''), created_at
from generation_records
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`
