package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				variables JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE execution_contexts (
				execution_id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				state VARCHAR(20) NOT NULL,
				variables JSONB NOT NULL DEFAULT '{}',
				current_node UUID,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_execution_contexts_workflow_id ON execution_contexts(workflow_id);
			CREATE INDEX idx_execution_contexts_state ON execution_contexts(state);
		`,
		2: `
			CREATE TABLE execution_transitions (
				id BIGSERIAL PRIMARY KEY,
				execution_id UUID NOT NULL,
				node_id UUID,
				state VARCHAR(20) NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				recorded_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_transitions_execution_id ON execution_transitions(execution_id, id);
		`,
	}
}
