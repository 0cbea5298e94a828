package sqlinline

const QSelectPresetCollection = `--sql 3c2b6f1a-5d3e-4b8e-9d0f-7e1a2c4b6d80
select presets, version
from preset_collections
where name = $1::text
limit 1;
`

const QSelectPresetCollectionForUpdate = `--sql 9b7e4a21-0c6d-4f3b-8a52-e1d9c7b3f046
select presets, version
from preset_collections
where name = $1::text
for update;
`

const QUpsertPresetCollection = `--sql 5a1f8e3c-2b4d-4c6e-9f70-8d2b1a3c5e7f
insert into preset_collections (name, presets, version, updated_at)
values ($1::text, $2::jsonb, 1, now())
on conflict (name) do update set
    presets = excluded.presets,
    version = preset_collections.version + 1,
    updated_at = now()
returning version;
`

const QNotifyPresetUpdate = `--sql e4c1d7b9-6a2f-4e58-b3d0-1f9a7c5e2b64
select pg_notify('preset_updates', $1::text);
`
