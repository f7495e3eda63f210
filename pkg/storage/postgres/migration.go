package postgres

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create executions table
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				type VARCHAR(100),
				input JSONB,
				result JSONB,
				error TEXT,
				token_usage INTEGER NOT NULL DEFAULT 0,
				tags JSONB,
				priority INTEGER NOT NULL DEFAULT 0,
				owner VARCHAR(255),
				metadata JSONB,
				completed_branch_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_owner ON executions(owner);
			CREATE INDEX idx_executions_created_at ON executions(created_at);
			CREATE INDEX idx_executions_started_at ON executions(started_at);
			CREATE INDEX idx_executions_finished_at ON executions(finished_at);

			-- Create execution_branches table
			CREATE TABLE execution_branches (
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				parent_branch_id VARCHAR(255),
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				node_ids JSONB,
				completed_node_ids JSONB,
				result JSONB,
				error TEXT,
				priority INTEGER NOT NULL DEFAULT 0,
				tags JSONB,
				relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (execution_id, id)
			);

			CREATE INDEX idx_execution_branches_execution_id ON execution_branches(execution_id);
			CREATE INDEX idx_execution_branches_status ON execution_branches(status);
			CREATE INDEX idx_execution_branches_created_at ON execution_branches(created_at);
		`,
	}
}
