package postgres

// migrationPgvector adds the pgvector column used for cosine search. It is
// applied only when the vector extension is available and is safe to run
// repeatedly.
const migrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'memory_units' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE memory_units ADD COLUMN embedding_vec vector;
    END IF;
END
$$;
`
